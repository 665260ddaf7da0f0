// Package combo checks combo-offer feasibility against current stock and
// cart reservations.
package combo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-canteen/internal/catalog"
	"github.com/noah-isme/backend-canteen/internal/common"
)

// feasibilityEpsilon absorbs float noise in 3-decimal consumption sums.
const feasibilityEpsilon = 1e-9

// CartLine is one item already in the caller's cart. Exactly one of
// ProductID / ComboID is set. LineID lets update checks exclude the line
// being replaced.
type CartLine struct {
	LineID    string
	ProductID *uuid.UUID
	ComboID   *uuid.UUID
	Quantity  float64
}

// BalanceReader is the slice of the stock ledger the evaluator needs.
type BalanceReader interface {
	Balance(ctx context.Context, tenantID string, productID uuid.UUID, asOf *time.Time) (float64, error)
}

// Evaluator decides whether a combo at a given multiplicity fits the stock
// that is left after the rest of the cart is accounted for.
type Evaluator struct {
	Catalog *catalog.Service
	Stock   BalanceReader
}

// Shortfall describes the first component that cannot be served.
type Shortfall struct {
	ProductID uuid.UUID `json:"productId"`
	Available float64   `json:"available"`
	Needed    float64   `json:"needed"`
}

// Result is the outcome of a feasibility check. Needs holds the per-product
// consumption the combo would add, which order placement reuses to reserve.
type Result struct {
	Feasible  bool                  `json:"feasible"`
	Shortfall *Shortfall            `json:"shortfall,omitempty"`
	Needs     map[uuid.UUID]float64 `json:"-"`
}

// Evaluate checks combo × k against the cart. Components are checked in the
// combo's declared order so the failing product is stable. Cart lines with
// LineID equal to excludeLine are ignored, and combo lines in the cart count
// through their exploded components.
func (e *Evaluator) Evaluate(ctx context.Context, tenantID string, comboID uuid.UUID, k float64, cart []CartLine, excludeLine string) (Result, error) {
	if e == nil || e.Catalog == nil || e.Stock == nil {
		return Result{}, errors.New("combo evaluator not configured")
	}
	if k < 1 {
		return Result{}, common.NewAppError(common.CodeValidationFailed,
			"combo multiplicity must be at least 1", http.StatusBadRequest, nil)
	}
	offer, products, err := e.Catalog.ResolveCombo(ctx, tenantID, comboID)
	if err != nil {
		return Result{}, err
	}

	cartUse, err := e.cartConsumption(ctx, tenantID, cart, excludeLine)
	if err != nil {
		return Result{}, err
	}

	result := Result{Feasible: true, Needs: make(map[uuid.UUID]float64, len(offer.Components))}
	for i, comp := range offer.Components {
		p := products[i]
		needed, err := p.Consumption(k * comp.QuantityPerCombo)
		if err != nil {
			return Result{}, fmt.Errorf("component consumption: %w", err)
		}
		result.Needs[comp.ProductID] += needed

		balance, err := e.Stock.Balance(ctx, tenantID, comp.ProductID, nil)
		if err != nil {
			return Result{}, fmt.Errorf("component balance: %w", err)
		}
		available := balance - cartUse[comp.ProductID]
		if result.Needs[comp.ProductID] > available+feasibilityEpsilon {
			result.Feasible = false
			result.Shortfall = &Shortfall{
				ProductID: comp.ProductID,
				Available: available,
				Needed:    result.Needs[comp.ProductID],
			}
			return result, nil
		}
	}
	return result, nil
}

// Require is Evaluate with an error outcome: an infeasible combo becomes an
// INSUFFICIENT_STOCK fault naming the first offending component.
func (e *Evaluator) Require(ctx context.Context, tenantID string, comboID uuid.UUID, k float64, cart []CartLine, excludeLine string) (Result, error) {
	result, err := e.Evaluate(ctx, tenantID, comboID, k, cart, excludeLine)
	if err != nil {
		return Result{}, err
	}
	if !result.Feasible {
		return result, &common.AppError{
			Code:       common.CodeInsufficientStock,
			Message:    "combo component is short on stock",
			HTTPStatus: http.StatusConflict,
			Details: map[string]any{
				"productId": result.Shortfall.ProductID.String(),
				"available": result.Shortfall.Available,
				"needed":    result.Shortfall.Needed,
			},
		}
	}
	return result, nil
}

// cartConsumption sums per-product consumption of every cart line except the
// excluded one. Combo lines explode into their components.
func (e *Evaluator) cartConsumption(ctx context.Context, tenantID string, cart []CartLine, excludeLine string) (map[uuid.UUID]float64, error) {
	use := make(map[uuid.UUID]float64)
	for _, line := range cart {
		if excludeLine != "" && line.LineID == excludeLine {
			continue
		}
		switch {
		case line.ProductID != nil:
			p, err := e.Catalog.ResolveProduct(ctx, tenantID, *line.ProductID)
			if err != nil {
				return nil, err
			}
			units, err := p.Consumption(line.Quantity)
			if err != nil {
				return nil, fmt.Errorf("cart line consumption: %w", err)
			}
			use[p.ID] += units
		case line.ComboID != nil:
			offer, products, err := e.Catalog.ResolveCombo(ctx, tenantID, *line.ComboID)
			if err != nil {
				return nil, err
			}
			for i, comp := range offer.Components {
				units, err := products[i].Consumption(line.Quantity * comp.QuantityPerCombo)
				if err != nil {
					return nil, fmt.Errorf("cart combo consumption: %w", err)
				}
				use[comp.ProductID] += units
			}
		default:
			return nil, common.NewAppError(common.CodeValidationFailed,
				"cart line names neither a product nor a combo", http.StatusBadRequest, nil)
		}
	}
	return use, nil
}
