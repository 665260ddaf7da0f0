package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound indicates the requested product or combo does not exist within
// the tenant.
var ErrNotFound = errors.New("catalog: not found")

// Store provides tenant-scoped persistence for products and combos.
type Store interface {
	GetProduct(ctx context.Context, tenantID string, id uuid.UUID) (Product, error)
	ListProducts(ctx context.Context, tenantID string) ([]Product, error)
	SaveProduct(ctx context.Context, p Product) error
	GetCombo(ctx context.Context, tenantID string, id uuid.UUID) (Combo, error)
	ListCombos(ctx context.Context, tenantID string) ([]Combo, error)
	SaveCombo(ctx context.Context, c Combo) error
}
