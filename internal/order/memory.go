package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore is an in-memory Store for tests and development.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]map[uuid.UUID]Order
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[string]map[uuid.UUID]Order)}
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, o Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tenant := s.orders[o.TenantID]
	if tenant == nil {
		tenant = make(map[uuid.UUID]Order)
		s.orders[o.TenantID] = tenant
	}
	tenant[o.ID] = cloneOrder(o)
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, tenantID string, id uuid.UUID) (Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[tenantID][id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return cloneOrder(o), nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, o Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.TenantID][o.ID]; !ok {
		return ErrNotFound
	}
	s.orders[o.TenantID][o.ID] = cloneOrder(o)
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, tenantID string, from, to time.Time) ([]Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Order, 0)
	for _, o := range s.orders[tenantID] {
		if inWindow(o.CreatedAt, from, to) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Stats implements Store.
func (s *MemoryStore) Stats(_ context.Context, q StatsQuery) ([]ChannelStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byChannel := make(map[Channel]*ChannelStat)
	for _, o := range s.orders[q.TenantID] {
		if !inWindow(o.CreatedAt, q.From, q.To) {
			continue
		}
		if q.Channel != "" && o.Channel != q.Channel {
			continue
		}
		if o.Status == StatusFailed {
			continue
		}
		if o.Status == StatusCancelled && !q.IncludeCancelled {
			continue
		}
		stat := byChannel[o.Channel]
		if stat == nil {
			stat = &ChannelStat{Channel: o.Channel, SumGrandTotal: decimal.Zero}
			byChannel[o.Channel] = stat
		}
		stat.Count++
		if o.Status != StatusCancelled {
			stat.SumGrandTotal = stat.SumGrandTotal.Add(o.Totals.GrandTotal)
		}
	}
	out := make([]ChannelStat, 0, len(byChannel))
	for _, stat := range byChannel {
		out = append(out, *stat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out, nil
}

func inWindow(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}

func cloneOrder(o Order) Order {
	out := o
	out.Items = make([]LineItem, len(o.Items))
	for i, li := range o.Items {
		out.Items[i] = li
		if li.Consumption != nil {
			cons := make(map[uuid.UUID]float64, len(li.Consumption))
			for k, v := range li.Consumption {
				cons[k] = v
			}
			out.Items[i].Consumption = cons
		}
	}
	out.Audit = make([]AuditEntry, len(o.Audit))
	copy(out.Audit, o.Audit)
	return out
}
