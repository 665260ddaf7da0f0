package catalog

import (
	"net/http"

	"github.com/noah-isme/backend-canteen/internal/common"
	"github.com/noah-isme/backend-canteen/internal/tenant"
)

// Handler serves tenant-scoped catalog reads.
type Handler struct {
	Store Store
}

// Products lists the tenant's products.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidationFailed, "tenant is required", nil)
		return
	}
	products, err := h.Store.ListProducts(r.Context(), tenantID)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": products})
}

// Combos lists the tenant's combo offers.
func (h *Handler) Combos(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidationFailed, "tenant is required", nil)
		return
	}
	combos, err := h.Store.ListCombos(r.Context(), tenantID)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": combos})
}
