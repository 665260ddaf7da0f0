package catalog_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-canteen/internal/catalog"
	"github.com/noah-isme/backend-canteen/internal/common"
	"github.com/noah-isme/backend-canteen/internal/pricing"
	"github.com/noah-isme/backend-canteen/internal/unit"
)

func newProduct(tenantID string) catalog.Product {
	return catalog.Product{
		ID:           uuid.New(),
		TenantID:     tenantID,
		Name:         "Cola",
		QuantityText: "150 ML",
		NoQty:        1,
		StockUnit:    unit.Volume,
		SellingPrice: decimal.RequireFromString("40"),
		TaxRate:      decimal.RequireFromString("18"),
		GSTType:      pricing.Inclusive,
		Active:       true,
		Available:    true,
	}
}

func TestResolveProduct(t *testing.T) {
	store := catalog.NewMemoryStore()
	svc := &catalog.Service{Store: store}
	p := newProduct("pvx-goa")
	require.NoError(t, store.SaveProduct(context.Background(), p))

	got, err := svc.ResolveProduct(context.Background(), "pvx-goa", p.ID)
	require.NoError(t, err)
	require.Equal(t, p.ID, got.ID)
}

func TestResolveProductCrossTenant(t *testing.T) {
	store := catalog.NewMemoryStore()
	svc := &catalog.Service{Store: store}
	p := newProduct("pvx-goa")
	require.NoError(t, store.SaveProduct(context.Background(), p))

	_, err := svc.ResolveProduct(context.Background(), "other-theater", p.ID)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, common.CodeInvalidProduct, appErr.Code)
}

func TestResolveProductInactive(t *testing.T) {
	store := catalog.NewMemoryStore()
	svc := &catalog.Service{Store: store}
	p := newProduct("pvx-goa")
	p.Active = false
	require.NoError(t, store.SaveProduct(context.Background(), p))

	_, err := svc.ResolveProduct(context.Background(), "pvx-goa", p.ID)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, common.CodeInvalidProduct, appErr.Code)
}

func TestResolveProductUnsellableDescriptor(t *testing.T) {
	store := catalog.NewMemoryStore()
	svc := &catalog.Service{Store: store}
	p := newProduct("pvx-goa")
	// Count descriptor cannot serve a volume stock unit.
	p.QuantityText = "2 Nos"
	require.NoError(t, store.SaveProduct(context.Background(), p))

	_, err := svc.ResolveProduct(context.Background(), "pvx-goa", p.ID)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, common.CodeInvalidProduct, appErr.Code)
}

func TestResolveCombo(t *testing.T) {
	store := catalog.NewMemoryStore()
	svc := &catalog.Service{Store: store}
	p1 := newProduct("pvx-goa")
	p2 := newProduct("pvx-goa")
	require.NoError(t, store.SaveProduct(context.Background(), p1))
	require.NoError(t, store.SaveProduct(context.Background(), p2))

	combo := catalog.Combo{
		ID:       uuid.New(),
		TenantID: "pvx-goa",
		Name:     "Movie Snack",
		Components: []catalog.ComboComponent{
			{ProductID: p1.ID, QuantityPerCombo: 2},
			{ProductID: p2.ID, QuantityPerCombo: 1},
		},
		SellingPrice: decimal.RequireFromString("99"),
		TaxRate:      decimal.RequireFromString("5"),
		GSTType:      pricing.Exclusive,
		Active:       true,
	}
	require.NoError(t, store.SaveCombo(context.Background(), combo))

	got, products, err := svc.ResolveCombo(context.Background(), "pvx-goa", combo.ID)
	require.NoError(t, err)
	require.Len(t, products, 2)
	require.Equal(t, combo.ID, got.ID)

	// A combo with an inactive component cannot resolve.
	p2.Active = false
	require.NoError(t, store.SaveProduct(context.Background(), p2))
	_, _, err = svc.ResolveCombo(context.Background(), "pvx-goa", combo.ID)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, common.CodeInvalidProduct, appErr.Code)
}
