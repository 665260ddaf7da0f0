package events

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists events in the domain_events table.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

// InsertEvent implements EventStore.
func (s *PostgresStore) InsertEvent(ctx context.Context, ev Event) (Event, error) {
	_, err := s.Pool.Exec(ctx, `
INSERT INTO domain_events (id, tenant_id, topic, aggregate_id, payload, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.TenantID, ev.Topic, ev.AggregateID, []byte(ev.Payload), ev.OccurredAt)
	if err != nil {
		return Event{}, fmt.Errorf("insert domain event: %w", err)
	}
	return ev, nil
}
