package stock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrRejected is returned by an append check callback to refuse the write;
// stores surface it unchanged so callers can attach their own codes.
var ErrRejected = errors.New("stock: append rejected")

// SheetStore persists monthly sheets. Implementations must serialize all
// writes to one sheet and create missing sheets with an opening balance equal
// to the closing balance of the most recent earlier sheet.
type SheetStore interface {
	// AppendEntries atomically appends entries to the keyed sheet. The check
	// callback observes the locked sheet before the append and may refuse it
	// by returning an error. Entries whose IdemKey already exists on the
	// sheet are skipped silently (idempotent replay). The resulting sheet is
	// returned.
	AppendEntries(ctx context.Context, key SheetKey, entries []Entry, check func(Sheet) error) (Sheet, error)

	// Get returns the keyed sheet. A sheet that was never written is
	// reported via found=false.
	Get(ctx context.Context, key SheetKey) (Sheet, bool, error)

	// Latest returns the most recent sheet for the product, or found=false
	// when the product has no sheets at all.
	Latest(ctx context.Context, tenantID string, productID uuid.UUID) (Sheet, bool, error)

	// HasEntries reports whether any entry with the given idempotency key
	// exists for the tenant, across all products and months.
	HasEntries(ctx context.Context, tenantID string, idemKey string) (bool, error)
}

// ReservationStore holds transient cart reservations with a TTL refreshed on
// every mutation.
type ReservationStore interface {
	// SetHold records the cart's target hold for the product. The value is a
	// target total, not a delta: repeated calls with the same units do not
	// accumulate.
	SetHold(ctx context.Context, tenantID, cartID string, productID uuid.UUID, units float64, ttl time.Duration) error

	// ReleaseCart drops every hold owned by the cart.
	ReleaseCart(ctx context.Context, tenantID, cartID string) error

	// ReleaseProduct drops the cart's hold on one product.
	ReleaseProduct(ctx context.Context, tenantID, cartID string, productID uuid.UUID) error

	// CartHolds returns the cart's current holds without consuming them.
	CartHolds(ctx context.Context, tenantID, cartID string) (map[uuid.UUID]float64, error)

	// TakeCart atomically reads and deletes the cart's holds. Returns
	// found=false when the reservation has expired or never existed.
	TakeCart(ctx context.Context, tenantID, cartID string) (map[uuid.UUID]float64, bool, error)

	// TotalHeld sums active holds on the product across all carts, excluding
	// excludeCart when non-empty.
	TotalHeld(ctx context.Context, tenantID string, productID uuid.UUID, excludeCart string) (float64, error)

	// Sweep trims index entries whose reservations have expired and returns
	// how many were removed.
	Sweep(ctx context.Context) (int, error)
}
