package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-canteen/internal/common"
)

// Service resolves catalog references within a tenant and enforces the
// sellability invariants.
type Service struct {
	Store Store
}

// ResolveProduct loads a product and verifies it can be sold right now.
func (s *Service) ResolveProduct(ctx context.Context, tenantID string, id uuid.UUID) (Product, error) {
	if s == nil || s.Store == nil {
		return Product{}, errors.New("catalog service not configured")
	}
	p, err := s.Store.GetProduct(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Product{}, invalidProduct(id, "product not found", err)
		}
		return Product{}, fmt.Errorf("load product: %w", err)
	}
	if !p.Active || !p.Available {
		return Product{}, invalidProduct(id, "product is not available", nil)
	}
	if !p.Sellable() {
		return Product{}, invalidProduct(id, "product unit descriptor cannot serve its stock unit", nil)
	}
	return p, nil
}

// ResolveCombo loads a combo and all of its component products, verifying
// every component resolves within the same tenant and is active.
func (s *Service) ResolveCombo(ctx context.Context, tenantID string, id uuid.UUID) (Combo, []Product, error) {
	if s == nil || s.Store == nil {
		return Combo{}, nil, errors.New("catalog service not configured")
	}
	c, err := s.Store.GetCombo(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Combo{}, nil, invalidProduct(id, "combo not found", err)
		}
		return Combo{}, nil, fmt.Errorf("load combo: %w", err)
	}
	if !c.Active {
		return Combo{}, nil, invalidProduct(id, "combo is not available", nil)
	}
	if len(c.Components) == 0 {
		return Combo{}, nil, invalidProduct(id, "combo has no components", nil)
	}
	products := make([]Product, 0, len(c.Components))
	for _, comp := range c.Components {
		if comp.QuantityPerCombo < 1 {
			return Combo{}, nil, invalidProduct(comp.ProductID, "combo component quantity must be at least 1", nil)
		}
		p, err := s.ResolveProduct(ctx, tenantID, comp.ProductID)
		if err != nil {
			return Combo{}, nil, err
		}
		products = append(products, p)
	}
	return c, products, nil
}

func invalidProduct(id uuid.UUID, message string, err error) *common.AppError {
	return &common.AppError{
		Code:       common.CodeInvalidProduct,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details:    map[string]any{"productId": id.String()},
	}
}
