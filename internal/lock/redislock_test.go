package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newLocker(t *testing.T) (Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return Locker{R: client, Prefix: "canteen:", RetryBackoff: 5 * time.Millisecond}, mr
}

func TestTryLockExclusive(t *testing.T) {
	ctx := context.Background()
	locker, _ := newLocker(t)

	release, err := locker.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)

	_, err = locker.TryLock(ctx, "sweep", time.Minute)
	require.ErrorIs(t, err, ErrNotAcquired)

	release()
	release2, err := locker.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	release2()
}

func TestTryLockTTLExpires(t *testing.T) {
	ctx := context.Background()
	locker, mr := newLocker(t)

	_, err := locker.TryLock(ctx, "sweep", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	release, err := locker.TryLock(ctx, "sweep", time.Second)
	require.NoError(t, err)
	release()
}

func TestReleaseIgnoresForeignHolder(t *testing.T) {
	ctx := context.Background()
	locker, mr := newLocker(t)

	release, err := locker.TryLock(ctx, "sweep", time.Second)
	require.NoError(t, err)

	// Lock expires and is reacquired elsewhere; the stale release must not
	// delete the new holder's lock.
	mr.FastForward(2 * time.Second)
	_, err = locker.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)

	release()
	_, err = locker.TryLock(ctx, "sweep", time.Minute)
	require.ErrorIs(t, err, ErrNotAcquired)
}

func TestWithLockRetries(t *testing.T) {
	ctx := context.Background()
	locker, _ := newLocker(t)

	release, err := locker.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- locker.WithLock(ctx, "sweep", time.Minute, func(context.Context) error {
			return nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	release()
	require.NoError(t, <-done)
}

func TestWithLockContextCancel(t *testing.T) {
	locker, _ := newLocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	release, err := locker.TryLock(context.Background(), "sweep", time.Minute)
	require.NoError(t, err)
	defer release()

	err = locker.WithLock(ctx, "sweep", time.Minute, func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
