package combo

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-canteen/internal/common"
	"github.com/noah-isme/backend-canteen/internal/tenant"
)

// Handler serves the feasibility check for POS and kiosk carts.
type Handler struct {
	Evaluator *Evaluator
}

type cartLineRequest struct {
	LineID    string     `json:"lineId"`
	ProductID *uuid.UUID `json:"productId,omitempty"`
	ComboID   *uuid.UUID `json:"comboId,omitempty"`
	Quantity  float64    `json:"quantity"`
}

type feasibilityRequest struct {
	Quantity      float64           `json:"quantity" validate:"required,gte=1"`
	Cart          []cartLineRequest `json:"cart"`
	ExcludeLineID string            `json:"excludeLineId"`
}

// Check handles POST /combos/{comboId}/feasibility. It reports the outcome as
// data rather than an error so clients can grey out the offer without
// special-casing 409s.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidationFailed, "tenant is required", nil)
		return
	}
	comboID, err := uuid.Parse(chi.URLParam(r, "comboId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidationFailed, "invalid combo id", nil)
		return
	}
	var req feasibilityRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.RenderError(w, err)
		return
	}
	cart := make([]CartLine, 0, len(req.Cart))
	for _, line := range req.Cart {
		cart = append(cart, CartLine{
			LineID:    line.LineID,
			ProductID: line.ProductID,
			ComboID:   line.ComboID,
			Quantity:  line.Quantity,
		})
	}
	result, err := h.Evaluator.Evaluate(r.Context(), tenantID, comboID, req.Quantity, cart, req.ExcludeLineID)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}
