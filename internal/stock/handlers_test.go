package stock

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-canteen/internal/common"
	"github.com/noah-isme/backend-canteen/internal/events"
	"github.com/noah-isme/backend-canteen/internal/tenant"
)

func newStockRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/stock/{productId}/entries", h.AppendEntry)
	r.Get("/stock/{productId}", h.GetSheet)
	return r
}

func stockRequest(method, target, body string, staff bool) *http.Request {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	ctx := tenant.WithTenant(context.Background(), testTenant)
	if staff {
		ctx = common.WithPrincipal(ctx, common.Principal{UserID: "u-1", Role: common.RoleStaff})
	}
	return req.WithContext(ctx)
}

func TestAppendEntryStaffOnly(t *testing.T) {
	ledger, products, _ := newTestLedger(t)
	p := seedProduct(t, products, "Samosa")
	router := newStockRouter(&Handler{Ledger: ledger})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, stockRequest(http.MethodPost, "/stock/"+p.ID.String()+"/entries",
		`{"kind":"purchase","delta":5}`, false))
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, stockRequest(http.MethodPost, "/stock/"+p.ID.String()+"/entries",
		`{"kind":"purchase","delta":5,"reason":"weekly delivery"}`, true))
	require.Equal(t, http.StatusCreated, rr.Code)
}

func TestAppendEntryEmitsEvent(t *testing.T) {
	ledger, products, _ := newTestLedger(t)
	p := seedProduct(t, products, "Samosa")
	eventStore := events.NewMemoryStore()
	router := newStockRouter(&Handler{Ledger: ledger, Events: &events.Bus{Store: eventStore}})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, stockRequest(http.MethodPost, "/stock/"+p.ID.String()+"/entries",
		`{"kind":"purchase","delta":12}`, true))
	require.Equal(t, http.StatusCreated, rr.Code)

	emitted := eventStore.ByTopic(events.TopicStockAdjusted)
	require.Len(t, emitted, 1)
	require.Equal(t, p.ID, emitted[0].AggregateID)
}

func TestAppendEntryNegativeBalanceConflict(t *testing.T) {
	ledger, products, _ := newTestLedger(t)
	p := seedProduct(t, products, "Samosa")
	seedStock(t, ledger, p.ID, 3)
	router := newStockRouter(&Handler{Ledger: ledger})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, stockRequest(http.MethodPost, "/stock/"+p.ID.String()+"/entries",
		`{"kind":"waste","delta":-5,"reason":"spoilage"}`, true))
	require.Equal(t, http.StatusConflict, rr.Code)

	var body common.ErrorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, common.CodeNegativeBalance, body.Code)
}

func TestGetSheetCurrentMonth(t *testing.T) {
	ledger, products, _ := newTestLedger(t)
	p := seedProduct(t, products, "Samosa")
	seedStock(t, ledger, p.ID, 10)
	router := newStockRouter(&Handler{Ledger: ledger})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, stockRequest(http.MethodGet, "/stock/"+p.ID.String(), "", false))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Data struct {
			Month   string  `json:"month"`
			Opening float64 `json:"opening"`
			Closing float64 `json:"closing"`
			Entries []Entry `json:"entries"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, MonthOf(time.Now()).String(), resp.Data.Month)
	require.InDelta(t, 10, resp.Data.Closing, balanceEpsilon)
	require.Len(t, resp.Data.Entries, 1)
}

func TestGetSheetRejectsBadMonth(t *testing.T) {
	ledger, products, _ := newTestLedger(t)
	p := seedProduct(t, products, "Samosa")
	router := newStockRouter(&Handler{Ledger: ledger})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, stockRequest(http.MethodGet, "/stock/"+p.ID.String()+"?month=March", "", false))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
