package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	seen []Event
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, ev Event) error {
	n.seen = append(n.seen, ev)
	return n.err
}

func TestEmitPersistsAndNotifies(t *testing.T) {
	store := NewMemoryStore()
	notifier := &recordingNotifier{}
	bus := &Bus{Store: store, Notifiers: []Notifier{notifier}}

	aggregate := uuid.New()
	ev, err := bus.Emit(context.Background(), "t1", TopicOrderPlaced, aggregate, map[string]any{"total": "118.00"})
	require.NoError(t, err)
	require.Equal(t, TopicOrderPlaced, ev.Topic)
	require.Equal(t, "t1", ev.TenantID)
	require.Equal(t, aggregate, ev.AggregateID)
	require.True(t, json.Valid(ev.Payload))

	require.Len(t, store.ByTopic(TopicOrderPlaced), 1)
	require.Len(t, notifier.seen, 1)
}

func TestEmitNotifierFailureKeepsEvent(t *testing.T) {
	store := NewMemoryStore()
	bus := &Bus{Store: store, Notifiers: []Notifier{&recordingNotifier{err: errors.New("smtp down")}}}

	_, err := bus.Emit(context.Background(), "t1", TopicOrderCancelled, uuid.New(), nil)
	require.Error(t, err)
	require.Len(t, store.Events(), 1)
}

func TestEmitValidation(t *testing.T) {
	bus := &Bus{Store: NewMemoryStore()}
	ctx := context.Background()

	_, err := bus.Emit(ctx, "t1", "  ", uuid.New(), nil)
	require.Error(t, err)

	_, err = bus.Emit(ctx, "", TopicOrderPlaced, uuid.New(), nil)
	require.Error(t, err)

	_, err = bus.Emit(ctx, "t1", TopicOrderPlaced, uuid.Nil, nil)
	require.Error(t, err)

	_, err = bus.Emit(ctx, "t1", TopicOrderPlaced, uuid.New(), "not-json")
	require.Error(t, err)
}
