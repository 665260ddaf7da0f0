package combo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-canteen/internal/catalog"
	"github.com/noah-isme/backend-canteen/internal/tenant"
)

func newFeasibilityRouter(ev *Evaluator) http.Handler {
	r := chi.NewRouter()
	r.Post("/combos/{comboId}/feasibility", (&Handler{Evaluator: ev}).Check)
	return r
}

func postFeasibility(t *testing.T, router http.Handler, comboID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/combos/"+comboID+"/feasibility", strings.NewReader(body))
	req = req.WithContext(tenant.WithTenant(context.Background(), testTenant))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestCheckFeasible(t *testing.T) {
	store := catalog.NewMemoryStore()
	p1 := countProduct(t, store, "Popcorn")
	p2 := countProduct(t, store, "Coke")
	offer := saveCombo(t, store, "Movie Duo",
		catalog.ComboComponent{ProductID: p1.ID, QuantityPerCombo: 2},
		catalog.ComboComponent{ProductID: p2.ID, QuantityPerCombo: 1},
	)
	ev := &Evaluator{
		Catalog: &catalog.Service{Store: store},
		Stock:   stubBalances{p1.ID: 5, p2.ID: 10},
	}

	rr := postFeasibility(t, newFeasibilityRouter(ev), offer.ID.String(), `{"quantity":2}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Data Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, resp.Data.Feasible)
	require.Nil(t, resp.Data.Shortfall)
}

func TestCheckReportsShortfallAsData(t *testing.T) {
	store := catalog.NewMemoryStore()
	p1 := countProduct(t, store, "Popcorn")
	offer := saveCombo(t, store, "Solo Snack",
		catalog.ComboComponent{ProductID: p1.ID, QuantityPerCombo: 2},
	)
	ev := &Evaluator{
		Catalog: &catalog.Service{Store: store},
		Stock:   stubBalances{p1.ID: 4},
	}

	rr := postFeasibility(t, newFeasibilityRouter(ev), offer.ID.String(), `{"quantity":3}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Data Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.False(t, resp.Data.Feasible)
	require.NotNil(t, resp.Data.Shortfall)
	require.Equal(t, p1.ID, resp.Data.Shortfall.ProductID)
	require.InDelta(t, 4, resp.Data.Shortfall.Available, 1e-9)
	require.InDelta(t, 6, resp.Data.Shortfall.Needed, 1e-9)
}

func TestCheckRejectsBadQuantity(t *testing.T) {
	store := catalog.NewMemoryStore()
	p1 := countProduct(t, store, "Popcorn")
	offer := saveCombo(t, store, "Solo Snack",
		catalog.ComboComponent{ProductID: p1.ID, QuantityPerCombo: 1},
	)
	ev := &Evaluator{Catalog: &catalog.Service{Store: store}, Stock: stubBalances{}}

	rr := postFeasibility(t, newFeasibilityRouter(ev), offer.ID.String(), `{"quantity":0}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCheckUnknownCombo(t *testing.T) {
	store := catalog.NewMemoryStore()
	ev := &Evaluator{Catalog: &catalog.Service{Store: store}, Stock: stubBalances{}}

	rr := postFeasibility(t, newFeasibilityRouter(ev), "11111111-1111-1111-1111-111111111111", `{"quantity":1}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCheckRequiresTenant(t *testing.T) {
	ev := &Evaluator{Catalog: &catalog.Service{Store: catalog.NewMemoryStore()}, Stock: stubBalances{}}
	req := httptest.NewRequest(http.MethodPost, "/combos/"+strings.Repeat("1", 8)+"/feasibility", strings.NewReader(`{"quantity":1}`))
	rr := httptest.NewRecorder()
	newFeasibilityRouter(ev).ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
