package stock

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-canteen/internal/common"
	"github.com/noah-isme/backend-canteen/internal/events"
	"github.com/noah-isme/backend-canteen/internal/tenant"
)

// Handler serves the stock endpoints.
type Handler struct {
	Ledger *Ledger
	Events *events.Bus
	Now    func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

type entryRequest struct {
	Kind   EntryKind `json:"kind" validate:"required"`
	Delta  float64   `json:"delta" validate:"required"`
	Reason string    `json:"reason,omitempty"`
}

// AppendEntry handles POST /stock/{productId}/entries. Staff only; the sale
// kind is reserved for order commits.
func (h *Handler) AppendEntry(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidationFailed, "tenant is required", nil)
		return
	}
	p, _ := common.PrincipalFrom(r.Context())
	if !p.IsStaff() {
		common.JSONError(w, http.StatusForbidden, common.CodeAccessDenied, "only staff may write stock entries", nil)
		return
	}
	productID, err := uuid.Parse(chi.URLParam(r, "productId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidationFailed, "invalid product id", nil)
		return
	}
	var req entryRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.RenderError(w, err)
		return
	}
	entry, err := h.Ledger.AppendEntry(r.Context(), tenantID, productID, req.Kind, req.Delta, req.Reason)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	if h.Events != nil {
		_, _ = h.Events.Emit(r.Context(), tenantID, events.TopicStockAdjusted, productID, map[string]any{
			"kind":  string(entry.Kind),
			"delta": entry.Delta,
		})
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": entry})
}

type sheetResponse struct {
	ProductID uuid.UUID `json:"productId"`
	Month     string    `json:"month"`
	Opening   float64   `json:"opening"`
	Closing   float64   `json:"closing"`
	Entries   []Entry   `json:"entries"`
}

// GetSheet handles GET /stock/{productId}?month=YYYY-MM. Without a month the
// current month's sheet is served.
func (h *Handler) GetSheet(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidationFailed, "tenant is required", nil)
		return
	}
	productID, err := uuid.Parse(chi.URLParam(r, "productId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidationFailed, "invalid product id", nil)
		return
	}
	month := MonthOf(h.now())
	if raw := r.URL.Query().Get("month"); raw != "" {
		parsed, err := time.Parse("2006-01", raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidationFailed, "month must be YYYY-MM", nil)
			return
		}
		month = MonthOf(parsed)
	}
	sheet, err := h.Ledger.Sheet(r.Context(), tenantID, productID, month)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": sheetResponse{
		ProductID: productID,
		Month:     month.String(),
		Opening:   sheet.Opening,
		Closing:   sheet.Closing(),
		Entries:   sheet.Entries,
	}})
}
