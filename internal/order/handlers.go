package order

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-canteen/internal/common"
	"github.com/noah-isme/backend-canteen/internal/tenant"
)

// Handler serves the order endpoints.
type Handler struct {
	Coordinator *Coordinator
	Stats       *StatsService
}

func requestScope(w http.ResponseWriter, r *http.Request) (tenantID string, p common.Principal, ok bool) {
	tenantID, ok = tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidationFailed, "tenant is required", nil)
		return "", common.Principal{}, false
	}
	p, _ = common.PrincipalFrom(r.Context())
	return tenantID, p, true
}

func orderID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidationFailed, "invalid id", nil)
		return uuid.Nil, false
	}
	return id, true
}

// Place handles POST /orders.
func (h *Handler) Place(w http.ResponseWriter, r *http.Request) {
	tenantID, p, ok := requestScope(w, r)
	if !ok {
		return
	}
	var input PlaceInput
	if err := common.DecodeJSON(r, &input); err != nil {
		common.RenderError(w, err)
		return
	}
	o, err := h.Coordinator.PlaceOrder(r.Context(), tenantID, p, input)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": o})
}

// Get handles GET /orders/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := requestScope(w, r)
	if !ok {
		return
	}
	id, ok := orderID(w, r, "id")
	if !ok {
		return
	}
	o, err := h.Coordinator.Get(r.Context(), tenantID, id)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

type statusRequest struct {
	Status Status `json:"status" validate:"required"`
}

// UpdateStatus handles PUT /orders/{id}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, p, ok := requestScope(w, r)
	if !ok {
		return
	}
	id, ok := orderID(w, r, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.RenderError(w, err)
		return
	}
	o, err := h.Coordinator.UpdateStatus(r.Context(), tenantID, id, req.Status, p)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// CancelItem handles DELETE /orders/{id}/items/{itemId}. The new totals ride
// back on the full order payload.
func (h *Handler) CancelItem(w http.ResponseWriter, r *http.Request) {
	tenantID, p, ok := requestScope(w, r)
	if !ok {
		return
	}
	id, ok := orderID(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := orderID(w, r, "itemId")
	if !ok {
		return
	}
	reason := r.URL.Query().Get("reason")
	o, err := h.Coordinator.CancelItem(r.Context(), tenantID, id, itemID, reason, p)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

type customerCancelRequest struct {
	Phone string `json:"phone" validate:"required"`
}

// CustomerCancel handles PUT /orders/{id}/customer-cancel.
func (h *Handler) CustomerCancel(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := requestScope(w, r)
	if !ok {
		return
	}
	id, ok := orderID(w, r, "id")
	if !ok {
		return
	}
	var req customerCancelRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.RenderError(w, err)
		return
	}
	o, err := h.Coordinator.CustomerCancel(r.Context(), tenantID, id, req.Phone)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// GetStats handles GET /orders/stats?from=&to=&channel=&includeCancelled=.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := requestScope(w, r)
	if !ok {
		return
	}
	q := StatsQuery{
		TenantID:         tenantID,
		Channel:          Channel(r.URL.Query().Get("channel")),
		IncludeCancelled: r.URL.Query().Get("includeCancelled") == "true",
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidationFailed, "invalid from timestamp", nil)
			return
		}
		q.From = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidationFailed, "invalid to timestamp", nil)
			return
		}
		q.To = t
	}
	rows, err := h.Stats.Stats(r.Context(), q)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}
