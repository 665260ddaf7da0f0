package events

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes every emitted event to the structured log. It stands in
// for the SMS/mail collaborators that consume events in production.
type LogNotifier struct {
	Logger *zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, ev Event) error {
	if n.Logger == nil {
		return nil
	}
	n.Logger.Info().
		Str("topic", ev.Topic).
		Str("tenant_id", ev.TenantID).
		Str("aggregate_id", ev.AggregateID.String()).
		Time("occurred_at", ev.OccurredAt).
		Msg("domain_event")
	return nil
}
