package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newLimiter(t *testing.T) (Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return Limiter{Client: client, Prefix: "canteen:"}, mr
}

func TestAllowWithinLimit(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newLimiter(t)

	for i := 0; i < 3; i++ {
		decision, err := limiter.Allow(ctx, "t1:kiosk", time.Minute, 3)
		require.NoError(t, err)
		require.True(t, decision.Allowed, "request %d should pass", i)
	}
	decision, err := limiter.Allow(ctx, "t1:kiosk", time.Minute, 3)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Zero(t, decision.Remaining)
}

func TestAllowKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newLimiter(t)

	for i := 0; i < 3; i++ {
		_, err := limiter.Allow(ctx, "t1:a", time.Minute, 3)
		require.NoError(t, err)
	}
	decision, err := limiter.Allow(ctx, "t2:a", time.Minute, 3)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
}

func TestAllowWindowSlides(t *testing.T) {
	ctx := context.Background()
	limiter, mr := newLimiter(t)
	now := time.Now()
	limiter.Now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_, err := limiter.Allow(ctx, "t1:a", time.Minute, 2)
		require.NoError(t, err)
	}
	decision, err := limiter.Allow(ctx, "t1:a", time.Minute, 2)
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	now = now.Add(2 * time.Minute)
	mr.FastForward(2 * time.Minute)
	decision, err = limiter.Allow(ctx, "t1:a", time.Minute, 2)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
}

func TestAllowDisabledWithoutClient(t *testing.T) {
	decision, err := Limiter{}.Allow(context.Background(), "any", time.Minute, 10)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
}

func TestMiddlewareRejectsOverLimit(t *testing.T) {
	limiter, _ := newLimiter(t)
	handler := Handler{
		Limiter: limiter,
		Config: Config{
			Key:    func(r *http.Request) string { return r.RemoteAddr },
			Window: time.Minute,
			Max:    1,
		},
	}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "RATE_LIMITED", body.Code)
}
