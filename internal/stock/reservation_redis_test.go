package stock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newReservationStore(t *testing.T) (RedisReservationStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return RedisReservationStore{Client: client, Prefix: "canteen"}, mr
}

func TestReservationSetHoldIsTargetTotal(t *testing.T) {
	ctx := context.Background()
	store, _ := newReservationStore(t)
	productID := uuid.New()

	require.NoError(t, store.SetHold(ctx, "t1", "cart-1", productID, 2.5, time.Minute))
	require.NoError(t, store.SetHold(ctx, "t1", "cart-1", productID, 2.5, time.Minute))

	holds, err := store.CartHolds(ctx, "t1", "cart-1")
	require.NoError(t, err)
	require.InDelta(t, 2.5, holds[productID], balanceEpsilon)

	total, err := store.TotalHeld(ctx, "t1", productID, "")
	require.NoError(t, err)
	require.InDelta(t, 2.5, total, balanceEpsilon)
}

func TestReservationTotalHeldScoping(t *testing.T) {
	ctx := context.Background()
	store, _ := newReservationStore(t)
	productID := uuid.New()

	require.NoError(t, store.SetHold(ctx, "t1", "cart-1", productID, 1, time.Minute))
	require.NoError(t, store.SetHold(ctx, "t1", "cart-2", productID, 2, time.Minute))
	require.NoError(t, store.SetHold(ctx, "t2", "cart-9", productID, 7, time.Minute))

	total, err := store.TotalHeld(ctx, "t1", productID, "")
	require.NoError(t, err)
	require.InDelta(t, 3, total, balanceEpsilon)

	total, err = store.TotalHeld(ctx, "t1", productID, "cart-1")
	require.NoError(t, err)
	require.InDelta(t, 2, total, balanceEpsilon)
}

func TestReservationTakeCartConsumes(t *testing.T) {
	ctx := context.Background()
	store, _ := newReservationStore(t)
	productID := uuid.New()

	require.NoError(t, store.SetHold(ctx, "t1", "cart-1", productID, 4, time.Minute))

	holds, found, err := store.TakeCart(ctx, "t1", "cart-1")
	require.NoError(t, err)
	require.True(t, found)
	require.InDelta(t, 4, holds[productID], balanceEpsilon)

	// Second take sees nothing.
	_, found, err = store.TakeCart(ctx, "t1", "cart-1")
	require.NoError(t, err)
	require.False(t, found)

	total, err := store.TotalHeld(ctx, "t1", productID, "")
	require.NoError(t, err)
	require.InDelta(t, 0, total, balanceEpsilon)
}

func TestReservationExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newReservationStore(t)
	productID := uuid.New()

	require.NoError(t, store.SetHold(ctx, "t1", "cart-1", productID, 3, time.Minute))
	mr.FastForward(2 * time.Minute)

	_, found, err := store.TakeCart(ctx, "t1", "cart-1")
	require.NoError(t, err)
	require.False(t, found)

	total, err := store.TotalHeld(ctx, "t1", productID, "")
	require.NoError(t, err)
	require.InDelta(t, 0, total, balanceEpsilon)
}

func TestReservationMutationRefreshesTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newReservationStore(t)
	productID := uuid.New()

	require.NoError(t, store.SetHold(ctx, "t1", "cart-1", productID, 1, time.Minute))
	mr.FastForward(45 * time.Second)
	require.NoError(t, store.SetHold(ctx, "t1", "cart-1", productID, 2, time.Minute))
	mr.FastForward(45 * time.Second)

	holds, err := store.CartHolds(ctx, "t1", "cart-1")
	require.NoError(t, err)
	require.InDelta(t, 2, holds[productID], balanceEpsilon)
}

func TestReservationReleaseProduct(t *testing.T) {
	ctx := context.Background()
	store, _ := newReservationStore(t)
	pa, pb := uuid.New(), uuid.New()

	require.NoError(t, store.SetHold(ctx, "t1", "cart-1", pa, 1, time.Minute))
	require.NoError(t, store.SetHold(ctx, "t1", "cart-1", pb, 2, time.Minute))
	require.NoError(t, store.ReleaseProduct(ctx, "t1", "cart-1", pa))

	holds, err := store.CartHolds(ctx, "t1", "cart-1")
	require.NoError(t, err)
	require.NotContains(t, holds, pa)
	require.InDelta(t, 2, holds[pb], balanceEpsilon)
}

func TestReservationSweepTrimsExpired(t *testing.T) {
	ctx := context.Background()
	store, mr := newReservationStore(t)
	productID := uuid.New()

	require.NoError(t, store.SetHold(ctx, "t1", "cart-1", productID, 1, time.Minute))
	require.NoError(t, store.SetHold(ctx, "t1", "cart-2", productID, 1, time.Hour))
	mr.FastForward(2 * time.Minute)

	removed, err := store.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	total, err := store.TotalHeld(ctx, "t1", productID, "")
	require.NoError(t, err)
	require.InDelta(t, 1, total, balanceEpsilon)
}
