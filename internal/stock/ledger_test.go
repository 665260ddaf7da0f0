package stock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-canteen/internal/catalog"
	"github.com/noah-isme/backend-canteen/internal/common"
	"github.com/noah-isme/backend-canteen/internal/pricing"
	"github.com/noah-isme/backend-canteen/internal/unit"
)

const testTenant = "pvr-saket"

func newTestLedger(t *testing.T) (*Ledger, *catalog.MemoryStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	products := catalog.NewMemoryStore()
	ledger := &Ledger{
		Sheets:         NewMemorySheetStore(),
		Holds:          RedisReservationStore{Client: client},
		Products:       products,
		ReservationTTL: 10 * time.Minute,
	}
	return ledger, products, mr
}

func seedProduct(t *testing.T, store *catalog.MemoryStore, name string) catalog.Product {
	t.Helper()
	p := catalog.Product{
		ID:           uuid.New(),
		TenantID:     testTenant,
		Name:         name,
		NoQty:        1,
		StockUnit:    unit.Count,
		SellingPrice: decimal.NewFromInt(100),
		TaxRate:      decimal.NewFromInt(5),
		GSTType:      pricing.Exclusive,
		Active:       true,
		Available:    true,
	}
	require.NoError(t, store.SaveProduct(context.Background(), p))
	return p
}

func seedStock(t *testing.T, l *Ledger, productID uuid.UUID, units float64) {
	t.Helper()
	_, err := l.AppendEntry(context.Background(), testTenant, productID, KindPurchase, units, "opening purchase")
	require.NoError(t, err)
}

func TestLedgerReserveAndCommit(t *testing.T) {
	ctx := context.Background()
	ledger, products, _ := newTestLedger(t)
	p := seedProduct(t, products, "Samosa")
	seedStock(t, ledger, p.ID, 10)

	require.NoError(t, ledger.Reserve(ctx, testTenant, "cart-1", p.ID, 4))

	available, err := ledger.Available(ctx, testTenant, p.ID, "")
	require.NoError(t, err)
	require.InDelta(t, 6, available, balanceEpsilon)

	// Re-reserving is a target total, not an increment.
	require.NoError(t, ledger.Reserve(ctx, testTenant, "cart-1", p.ID, 3))
	available, err = ledger.Available(ctx, testTenant, p.ID, "")
	require.NoError(t, err)
	require.InDelta(t, 7, available, balanceEpsilon)

	placedAt := time.Now()
	require.NoError(t, ledger.Commit(ctx, testTenant, "cart-1", "ORD-1", placedAt))

	balance, err := ledger.Balance(ctx, testTenant, p.ID, nil)
	require.NoError(t, err)
	require.InDelta(t, 7, balance, balanceEpsilon)

	sheet, err := ledger.Sheet(ctx, testTenant, p.ID, MonthOf(placedAt))
	require.NoError(t, err)
	last := sheet.Entries[len(sheet.Entries)-1]
	require.Equal(t, KindSale, last.Kind)
	require.Equal(t, "ORD-1", last.OrderRef)
	require.InDelta(t, -3, last.Delta, balanceEpsilon)
}

func TestLedgerReserveOverAvailable(t *testing.T) {
	ctx := context.Background()
	ledger, products, _ := newTestLedger(t)
	p := seedProduct(t, products, "Popcorn Tub")
	seedStock(t, ledger, p.ID, 5)

	require.NoError(t, ledger.Reserve(ctx, testTenant, "cart-a", p.ID, 3))

	err := ledger.Reserve(ctx, testTenant, "cart-b", p.ID, 3)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, common.CodeOutOfStock, appErr.Code)
	details, ok := appErr.Details.(map[string]any)
	require.True(t, ok)
	require.InDelta(t, 2.0, details["available"].(float64), balanceEpsilon)
	require.InDelta(t, 3.0, details["needed"].(float64), balanceEpsilon)
}

func TestLedgerReserveUnknownProduct(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	err := ledger.Reserve(context.Background(), testTenant, "cart-1", uuid.New(), 1)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, common.CodeInvalidProduct, appErr.Code)
}

func TestLedgerCommitReplayIsNoop(t *testing.T) {
	ctx := context.Background()
	ledger, products, _ := newTestLedger(t)
	p := seedProduct(t, products, "Cold Coffee")
	seedStock(t, ledger, p.ID, 8)

	require.NoError(t, ledger.Reserve(ctx, testTenant, "cart-1", p.ID, 2))
	placedAt := time.Now()
	require.NoError(t, ledger.Commit(ctx, testTenant, "cart-1", "ORD-7", placedAt))
	require.NoError(t, ledger.Commit(ctx, testTenant, "cart-1", "ORD-7", placedAt))

	balance, err := ledger.Balance(ctx, testTenant, p.ID, nil)
	require.NoError(t, err)
	require.InDelta(t, 6, balance, balanceEpsilon)

	sheet, err := ledger.Sheet(ctx, testTenant, p.ID, MonthOf(placedAt))
	require.NoError(t, err)
	sales := 0
	for _, e := range sheet.Entries {
		if e.Kind == KindSale && e.OrderRef == "ORD-7" {
			sales++
		}
	}
	require.Equal(t, 1, sales)
}

func TestLedgerCommitAfterExpiry(t *testing.T) {
	ctx := context.Background()
	ledger, products, mr := newTestLedger(t)
	p := seedProduct(t, products, "Nachos")
	seedStock(t, ledger, p.ID, 5)

	require.NoError(t, ledger.Reserve(ctx, testTenant, "cart-1", p.ID, 2))
	mr.FastForward(11 * time.Minute)

	err := ledger.Commit(ctx, testTenant, "cart-1", "ORD-9", time.Now())
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, common.CodeReservationExpired, appErr.Code)

	// Nothing was deducted.
	balance, err := ledger.Balance(ctx, testTenant, p.ID, nil)
	require.NoError(t, err)
	require.InDelta(t, 5, balance, balanceEpsilon)
}

func TestLedgerCommitConflictUnwinds(t *testing.T) {
	ctx := context.Background()
	ledger, products, _ := newTestLedger(t)
	pa := seedProduct(t, products, "Aloo Tikki Burger")
	pb := seedProduct(t, products, "Veg Puff")
	seedStock(t, ledger, pa.ID, 10)
	seedStock(t, ledger, pb.ID, 2)

	require.NoError(t, ledger.Reserve(ctx, testTenant, "cart-1", pa.ID, 4))
	require.NoError(t, ledger.Reserve(ctx, testTenant, "cart-1", pb.ID, 2))

	// A write that bypasses the reservation drains product B before the
	// commit can land its sale entry.
	_, err := ledger.AppendEntry(ctx, testTenant, pb.ID, KindWaste, -2, "spoiled batch")
	require.NoError(t, err)

	err = ledger.Commit(ctx, testTenant, "cart-1", "ORD-3", time.Now())
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, common.CodeStockConflict, appErr.Code)

	// Any deduction the commit managed before failing was compensated.
	balanceA, err := ledger.Balance(ctx, testTenant, pa.ID, nil)
	require.NoError(t, err)
	require.InDelta(t, 10, balanceA, balanceEpsilon)
	balanceB, err := ledger.Balance(ctx, testTenant, pb.ID, nil)
	require.NoError(t, err)
	require.InDelta(t, 0, balanceB, balanceEpsilon)
}

// faultySheetStore fails sale appends for one product so a commit breaks
// partway through a multi-product cart.
type faultySheetStore struct {
	SheetStore
	failProduct uuid.UUID
}

func (s *faultySheetStore) AppendEntries(ctx context.Context, key SheetKey, entries []Entry, check func(Sheet) error) (Sheet, error) {
	if key.ProductID == s.failProduct && len(entries) == 1 && entries[0].Kind == KindSale {
		return Sheet{}, errors.New("sheet store unavailable")
	}
	return s.SheetStore.AppendEntries(ctx, key, entries, check)
}

func TestLedgerCommitStorageErrorUnwinds(t *testing.T) {
	ctx := context.Background()
	ledger, products, _ := newTestLedger(t)
	pa := seedProduct(t, products, "Cheese Garlic Bread")
	pb := seedProduct(t, products, "Lemon Iced Tea")
	seedStock(t, ledger, pa.ID, 10)
	seedStock(t, ledger, pb.ID, 10)

	require.NoError(t, ledger.Reserve(ctx, testTenant, "cart-1", pa.ID, 3))
	require.NoError(t, ledger.Reserve(ctx, testTenant, "cart-1", pb.ID, 3))

	// Commit walks products in sorted id order; fail the later one so the
	// earlier one's sale entry has already landed.
	second := pa.ID
	if pa.ID.String() < pb.ID.String() {
		second = pb.ID
	}
	faulty := &faultySheetStore{SheetStore: ledger.Sheets, failProduct: second}
	ledger.Sheets = faulty

	err := ledger.Commit(ctx, testTenant, "cart-1", "ORD-11", time.Now())
	require.Error(t, err)
	_, isAppErr := common.AsAppError(err)
	require.False(t, isAppErr)

	// The deduction that landed before the failure was compensated.
	for _, id := range []uuid.UUID{pa.ID, pb.ID} {
		balance, balErr := ledger.Balance(ctx, testTenant, id, nil)
		require.NoError(t, balErr)
		require.InDelta(t, 10, balance, balanceEpsilon)
	}

	// A retry with the store healthy again must not report a phantom
	// success off the first attempt's sale entries.
	faulty.failProduct = uuid.Nil
	err = ledger.Commit(ctx, testTenant, "cart-1", "ORD-11", time.Now())
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, common.CodeReservationExpired, appErr.Code)

	for _, id := range []uuid.UUID{pa.ID, pb.ID} {
		balance, balErr := ledger.Balance(ctx, testTenant, id, nil)
		require.NoError(t, balErr)
		require.InDelta(t, 10, balance, balanceEpsilon)
	}
}

func TestLedgerAppendEntryNegativeBalance(t *testing.T) {
	ctx := context.Background()
	ledger, products, _ := newTestLedger(t)
	p := seedProduct(t, products, "Pepsi Can")
	seedStock(t, ledger, p.ID, 3)

	_, err := ledger.AppendEntry(ctx, testTenant, p.ID, KindWaste, -5, "breakage")
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, common.CodeNegativeBalance, appErr.Code)

	balance, err := ledger.Balance(ctx, testTenant, p.ID, nil)
	require.NoError(t, err)
	require.InDelta(t, 3, balance, balanceEpsilon)
}

func TestLedgerAppendEntryRejectsSaleKind(t *testing.T) {
	ledger, products, _ := newTestLedger(t)
	p := seedProduct(t, products, "Brownie")
	_, err := ledger.AppendEntry(context.Background(), testTenant, p.ID, KindSale, -1, "")
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, common.CodeValidationFailed, appErr.Code)
}

func TestLedgerMonthRollover(t *testing.T) {
	ctx := context.Background()
	ledger, products, _ := newTestLedger(t)
	p := seedProduct(t, products, "Masala Tea")

	jan := time.Date(2026, time.January, 15, 10, 0, 0, 0, time.UTC)
	feb := time.Date(2026, time.February, 2, 10, 0, 0, 0, time.UTC)

	ledger.Now = func() time.Time { return jan }
	seedStock(t, ledger, p.ID, 20)
	_, err := ledger.AppendEntry(ctx, testTenant, p.ID, KindWaste, -4, "stale")
	require.NoError(t, err)

	// First write in February opens a fresh sheet carrying January's closing.
	ledger.Now = func() time.Time { return feb }
	_, err = ledger.AppendEntry(ctx, testTenant, p.ID, KindPurchase, 5, "restock")
	require.NoError(t, err)

	febSheet, err := ledger.Sheet(ctx, testTenant, p.ID, MonthOf(feb))
	require.NoError(t, err)
	require.InDelta(t, 16, febSheet.Opening, balanceEpsilon)
	require.InDelta(t, 21, febSheet.Closing(), balanceEpsilon)

	// Balance as of a January instant ignores February's entries.
	asOf := jan.Add(time.Hour)
	balance, err := ledger.Balance(ctx, testTenant, p.ID, &asOf)
	require.NoError(t, err)
	require.InDelta(t, 16, balance, balanceEpsilon)

	// A month with no sheet falls back to the latest earlier closing.
	march := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	balance, err = ledger.Balance(ctx, testTenant, p.ID, &march)
	require.NoError(t, err)
	require.InDelta(t, 21, balance, balanceEpsilon)
}

func TestLedgerReturnIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ledger, products, _ := newTestLedger(t)
	p := seedProduct(t, products, "French Fries")
	seedStock(t, ledger, p.ID, 10)

	require.NoError(t, ledger.Reserve(ctx, testTenant, "cart-1", p.ID, 4))
	require.NoError(t, ledger.Commit(ctx, testTenant, "cart-1", "ORD-5", time.Now()))

	key := CancelIdemKey("ORD-5", p.ID.String())
	require.NoError(t, ledger.Return(ctx, testTenant, p.ID, 4, "ORD-5", key, "line cancelled"))
	require.NoError(t, ledger.Return(ctx, testTenant, p.ID, 4, "ORD-5", key, "line cancelled"))

	balance, err := ledger.Balance(ctx, testTenant, p.ID, nil)
	require.NoError(t, err)
	require.InDelta(t, 10, balance, balanceEpsilon)
}

func TestLedgerReleaseFreesHold(t *testing.T) {
	ctx := context.Background()
	ledger, products, _ := newTestLedger(t)
	p := seedProduct(t, products, "Corn Cup")
	seedStock(t, ledger, p.ID, 5)

	require.NoError(t, ledger.Reserve(ctx, testTenant, "cart-1", p.ID, 5))
	err := ledger.Reserve(ctx, testTenant, "cart-2", p.ID, 1)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, common.CodeOutOfStock, appErr.Code)

	require.NoError(t, ledger.Release(ctx, testTenant, "cart-1", nil))
	require.NoError(t, ledger.Reserve(ctx, testTenant, "cart-2", p.ID, 1))
}

func TestLedgerSweepExpired(t *testing.T) {
	ctx := context.Background()
	ledger, products, mr := newTestLedger(t)
	p := seedProduct(t, products, "Ice Cream Tub")
	seedStock(t, ledger, p.ID, 5)

	require.NoError(t, ledger.Reserve(ctx, testTenant, "cart-1", p.ID, 2))
	mr.FastForward(11 * time.Minute)

	removed, err := ledger.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	available, err := ledger.Available(ctx, testTenant, p.ID, "")
	require.NoError(t, err)
	require.InDelta(t, 5, available, balanceEpsilon)
}
