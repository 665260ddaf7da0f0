package order

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates the order does not exist within the tenant.
var ErrNotFound = errors.New("order: not found")

// StatsQuery narrows the aggregate projection.
type StatsQuery struct {
	TenantID         string
	From             time.Time
	To               time.Time
	Channel          Channel
	IncludeCancelled bool
}

// Store provides tenant-scoped order persistence.
type Store interface {
	Create(ctx context.Context, o Order) error
	Get(ctx context.Context, tenantID string, id uuid.UUID) (Order, error)
	// Update overwrites the stored order. The caller holds the current copy;
	// updates within one request are sequential.
	Update(ctx context.Context, o Order) error
	List(ctx context.Context, tenantID string, from, to time.Time) ([]Order, error)
	Stats(ctx context.Context, q StatsQuery) ([]ChannelStat, error)
}
