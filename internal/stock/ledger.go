package stock

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-canteen/internal/catalog"
	"github.com/noah-isme/backend-canteen/internal/common"
	"github.com/noah-isme/backend-canteen/internal/obs"
)

// balanceEpsilon absorbs float noise in 3-decimal stock arithmetic.
const balanceEpsilon = 1e-9

// ProductLookup is the slice of the catalog the ledger needs.
type ProductLookup interface {
	GetProduct(ctx context.Context, tenantID string, id uuid.UUID) (catalog.Product, error)
}

// Ledger exposes the stock operations: reservations against available
// balance, idempotent sale commits, compensating returns, and balance reads.
type Ledger struct {
	Sheets         SheetStore
	Holds          ReservationStore
	Products       ProductLookup
	ReservationTTL time.Duration
	Now            func() time.Time
	Logger         *zerolog.Logger
}

func (l *Ledger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *Ledger) ttl() time.Duration {
	if l == nil || l.ReservationTTL <= 0 {
		return 10 * time.Minute
	}
	return l.ReservationTTL
}

func (l *Ledger) log() *zerolog.Logger {
	if l != nil && l.Logger != nil {
		return l.Logger
	}
	nop := zerolog.Nop()
	return &nop
}

// Reserve sets the cart's hold on a product to targetUnits (a target total,
// not a delta) when available balance allows it.
func (l *Ledger) Reserve(ctx context.Context, tenantID, cartID string, productID uuid.UUID, targetUnits float64) error {
	if l == nil || l.Sheets == nil || l.Holds == nil {
		return errors.New("stock ledger not configured")
	}
	if targetUnits < 0 {
		return common.NewAppError(common.CodeValidationFailed, "reservation units must not be negative", http.StatusBadRequest, nil)
	}
	if l.Products != nil {
		if _, err := l.Products.GetProduct(ctx, tenantID, productID); err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return &common.AppError{
					Code:       common.CodeInvalidProduct,
					Message:    "unknown product",
					HTTPStatus: http.StatusBadRequest,
					Err:        err,
					Details:    map[string]any{"productId": productID.String()},
				}
			}
			return fmt.Errorf("lookup product: %w", err)
		}
	}
	available, err := l.Available(ctx, tenantID, productID, cartID)
	if err != nil {
		return err
	}
	if targetUnits > available+balanceEpsilon {
		return stockFault(common.CodeOutOfStock, "not enough stock to reserve", productID, available, targetUnits)
	}
	if err := l.Holds.SetHold(ctx, tenantID, cartID, productID, targetUnits, l.ttl()); err != nil {
		return fmt.Errorf("set hold: %w", err)
	}
	return nil
}

// Release drops the cart's reservations; with a product id only that hold.
func (l *Ledger) Release(ctx context.Context, tenantID, cartID string, productID *uuid.UUID) error {
	if l == nil || l.Holds == nil {
		return errors.New("stock ledger not configured")
	}
	if productID != nil {
		return l.Holds.ReleaseProduct(ctx, tenantID, cartID, *productID)
	}
	return l.Holds.ReleaseCart(ctx, tenantID, cartID)
}

// Commit converts the cart's reservations into sale entries on the sheets of
// the order's placement month. Keyed by (orderRef, productId), a replay is a
// no-op. When a concurrent write would drive a balance below zero the commit
// unwinds what it already wrote and reports STOCK_CONFLICT.
func (l *Ledger) Commit(ctx context.Context, tenantID, cartID, orderRef string, placedAt time.Time) error {
	if l == nil || l.Sheets == nil || l.Holds == nil {
		return errors.New("stock ledger not configured")
	}
	already, err := l.Sheets.HasEntries(ctx, tenantID, SaleIdemKey(orderRef))
	if err != nil {
		return fmt.Errorf("check commit replay: %w", err)
	}
	if already {
		// An unwind entry means a previous attempt deducted and then rolled
		// back, so the sale entries no longer stand. Fall through; the holds
		// were consumed by that attempt and TakeCart reports the cart gone.
		unwound, err := l.Sheets.HasEntries(ctx, tenantID, UnwindIdemKey(orderRef))
		if err != nil {
			return fmt.Errorf("check commit replay: %w", err)
		}
		if !unwound {
			return nil
		}
	}
	holds, found, err := l.Holds.TakeCart(ctx, tenantID, cartID)
	if err != nil {
		return fmt.Errorf("take reservations: %w", err)
	}
	if !found {
		return common.NewAppError(common.CodeReservationExpired,
			"cart reservations expired before commit", http.StatusConflict, nil)
	}

	month := MonthOf(placedAt)
	products := make([]uuid.UUID, 0, len(holds))
	for id := range holds {
		products = append(products, id)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].String() < products[j].String() })

	committed := make([]uuid.UUID, 0, len(products))
	for _, productID := range products {
		units := holds[productID]
		key := SheetKey{TenantID: tenantID, ProductID: productID, Month: month}
		entry := Entry{
			Kind:      KindSale,
			Delta:     -units,
			OrderRef:  orderRef,
			IdemKey:   SaleIdemKey(orderRef),
			Timestamp: placedAt,
		}
		var shortBy float64
		_, err := l.Sheets.AppendEntries(ctx, key, []Entry{entry}, func(sheet Sheet) error {
			if closing := sheet.Closing(); closing-units < -balanceEpsilon {
				shortBy = closing
				return ErrRejected
			}
			return nil
		})
		if err != nil {
			// The holds are gone and earlier products in the loop already
			// carry sale entries, so every failure mode compensates what was
			// written before reporting.
			l.unwind(ctx, tenantID, orderRef, month, committed, holds)
			if !errors.Is(err, ErrRejected) {
				countStockWrite(KindSale, "error")
				return fmt.Errorf("append sale entry: %w", err)
			}
			countStockWrite(KindSale, "conflict")
			return stockFault(common.CodeStockConflict,
				"concurrent write exhausted stock", productID, shortBy, units)
		}
		committed = append(committed, productID)
		countStockWrite(KindSale, "ok")
		l.log().Info().
			Str("tenant_id", tenantID).
			Str("product_id", productID.String()).
			Str("order_ref", orderRef).
			Str("kind", string(KindSale)).
			Float64("delta", -units).
			Msg("stock_write")
	}
	return nil
}

// unwind appends compensating return entries for the products a failed
// commit already deducted.
func (l *Ledger) unwind(ctx context.Context, tenantID, orderRef string, month YearMonth, products []uuid.UUID, holds map[uuid.UUID]float64) {
	for _, productID := range products {
		key := SheetKey{TenantID: tenantID, ProductID: productID, Month: month}
		entry := Entry{
			Kind:     KindReturn,
			Delta:    holds[productID],
			OrderRef: orderRef,
			Reason:   "commit unwind",
			IdemKey:  UnwindIdemKey(orderRef),
		}
		if _, err := l.Sheets.AppendEntries(ctx, key, []Entry{entry}, nil); err != nil {
			l.log().Error().Err(err).
				Str("tenant_id", tenantID).
				Str("product_id", productID.String()).
				Str("order_ref", orderRef).
				Msg("commit unwind failed")
		}
	}
}

// AppendEntry records a non-sale stock movement. The non-negative balance
// invariant is re-checked under the sheet lock.
func (l *Ledger) AppendEntry(ctx context.Context, tenantID string, productID uuid.UUID, kind EntryKind, delta float64, reason string) (Entry, error) {
	if l == nil || l.Sheets == nil {
		return Entry{}, errors.New("stock ledger not configured")
	}
	if !ValidKind(kind) || kind == KindSale {
		return Entry{}, common.NewAppError(common.CodeValidationFailed,
			fmt.Sprintf("entry kind %q is not allowed here", kind), http.StatusBadRequest, nil)
	}
	now := l.now()
	entry := Entry{Kind: kind, Delta: delta, Reason: reason, Timestamp: now}
	key := SheetKey{TenantID: tenantID, ProductID: productID, Month: MonthOf(now)}
	var shortBy float64
	sheet, err := l.Sheets.AppendEntries(ctx, key, []Entry{entry}, func(sheet Sheet) error {
		if closing := sheet.Closing(); closing+delta < -balanceEpsilon {
			shortBy = closing
			return ErrRejected
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrRejected) {
			countStockWrite(kind, "rejected")
			return Entry{}, stockFault(common.CodeNegativeBalance,
				"entry would drive balance below zero", productID, shortBy, -delta)
		}
		return Entry{}, fmt.Errorf("append entry: %w", err)
	}
	countStockWrite(kind, "ok")
	l.log().Info().
		Str("tenant_id", tenantID).
		Str("product_id", productID.String()).
		Str("kind", string(kind)).
		Float64("delta", delta).
		Msg("stock_write")
	return sheet.Entries[len(sheet.Entries)-1], nil
}

// Return appends a compensating positive entry, idempotent by key. Used for
// line cancels and full order cancels.
func (l *Ledger) Return(ctx context.Context, tenantID string, productID uuid.UUID, units float64, orderRef, idemKey, reason string) error {
	if l == nil || l.Sheets == nil {
		return errors.New("stock ledger not configured")
	}
	if units <= 0 {
		return nil
	}
	key := SheetKey{TenantID: tenantID, ProductID: productID, Month: MonthOf(l.now())}
	entry := Entry{
		Kind:     KindReturn,
		Delta:    units,
		OrderRef: orderRef,
		Reason:   reason,
		IdemKey:  idemKey,
	}
	if _, err := l.Sheets.AppendEntries(ctx, key, []Entry{entry}, nil); err != nil {
		return fmt.Errorf("append return entry: %w", err)
	}
	countStockWrite(KindReturn, "ok")
	l.log().Info().
		Str("tenant_id", tenantID).
		Str("product_id", productID.String()).
		Str("order_ref", orderRef).
		Str("kind", string(KindReturn)).
		Float64("delta", units).
		Msg("stock_write")
	return nil
}

// Balance returns the closing balance. With asOf nil it is the latest
// sheet's closing; otherwise the balance of asOf's month considering only
// entries up to that instant.
func (l *Ledger) Balance(ctx context.Context, tenantID string, productID uuid.UUID, asOf *time.Time) (float64, error) {
	if l == nil || l.Sheets == nil {
		return 0, errors.New("stock ledger not configured")
	}
	if asOf == nil {
		sheet, found, err := l.Sheets.Latest(ctx, tenantID, productID)
		if err != nil {
			return 0, fmt.Errorf("load latest sheet: %w", err)
		}
		if !found {
			return 0, nil
		}
		return sheet.Closing(), nil
	}
	month := MonthOf(*asOf)
	sheet, found, err := l.Sheets.Get(ctx, SheetKey{TenantID: tenantID, ProductID: productID, Month: month})
	if err != nil {
		return 0, fmt.Errorf("load sheet: %w", err)
	}
	if !found {
		// No sheet for that month: the balance is the closing of the most
		// recent earlier sheet, if any.
		latest, ok, err := l.Sheets.Latest(ctx, tenantID, productID)
		if err != nil {
			return 0, err
		}
		if !ok || !latest.Key.Month.Before(month) {
			return 0, nil
		}
		return latest.Closing(), nil
	}
	total := sheet.Opening
	for _, e := range sheet.Entries {
		if !e.Timestamp.After(*asOf) {
			total += e.Delta
		}
	}
	return total, nil
}

// Available is the current balance minus all active reservations, optionally
// excluding one cart's own holds.
func (l *Ledger) Available(ctx context.Context, tenantID string, productID uuid.UUID, excludeCart string) (float64, error) {
	balance, err := l.Balance(ctx, tenantID, productID, nil)
	if err != nil {
		return 0, err
	}
	if l.Holds == nil {
		return balance, nil
	}
	held, err := l.Holds.TotalHeld(ctx, tenantID, productID, excludeCart)
	if err != nil {
		return 0, fmt.Errorf("sum holds: %w", err)
	}
	return balance - held, nil
}

// Sheet returns the sheet for the given month, synthesizing an empty one
// when no writes happened yet.
func (l *Ledger) Sheet(ctx context.Context, tenantID string, productID uuid.UUID, month YearMonth) (Sheet, error) {
	sheet, found, err := l.Sheets.Get(ctx, SheetKey{TenantID: tenantID, ProductID: productID, Month: month})
	if err != nil {
		return Sheet{}, fmt.Errorf("load sheet: %w", err)
	}
	if !found {
		return Sheet{Key: SheetKey{TenantID: tenantID, ProductID: productID, Month: month}}, nil
	}
	return sheet, nil
}

// SweepExpired trims expired reservations from the hold index.
func (l *Ledger) SweepExpired(ctx context.Context) (int, error) {
	if l == nil || l.Holds == nil {
		return 0, errors.New("stock ledger not configured")
	}
	removed, err := l.Holds.Sweep(ctx)
	if err != nil {
		return removed, err
	}
	if obs.ReservationSweepsTotal != nil {
		obs.ReservationSweepsTotal.Inc()
	}
	if removed > 0 {
		if obs.ReservationsSweptTotal != nil {
			obs.ReservationsSweptTotal.Add(float64(removed))
		}
		l.log().Info().Int("removed", removed).Msg("reservation_sweep")
	}
	return removed, nil
}

func countStockWrite(kind EntryKind, result string) {
	if obs.StockWritesTotal != nil {
		obs.StockWritesTotal.WithLabelValues(string(kind), result).Inc()
	}
}

func stockFault(code, message string, productID uuid.UUID, available, needed float64) *common.AppError {
	return &common.AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"productId": productID.String(),
			"available": available,
			"needed":    needed,
		},
	}
}
