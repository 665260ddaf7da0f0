package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used by tests and single-node setups.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[string]map[uuid.UUID]Product
	combos   map[string]map[uuid.UUID]Combo
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[string]map[uuid.UUID]Product),
		combos:   make(map[string]map[uuid.UUID]Combo),
	}
}

// GetProduct returns a product within the tenant.
func (s *MemoryStore) GetProduct(_ context.Context, tenantID string, id uuid.UUID) (Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[tenantID][id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

// ListProducts returns all products for the tenant sorted by name.
func (s *MemoryStore) ListProducts(_ context.Context, tenantID string) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Product, 0, len(s.products[tenantID]))
	for _, p := range s.products[tenantID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SaveProduct inserts or replaces a product.
func (s *MemoryStore) SaveProduct(_ context.Context, p Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.products[p.TenantID] == nil {
		s.products[p.TenantID] = make(map[uuid.UUID]Product)
	}
	s.products[p.TenantID][p.ID] = p
	return nil
}

// GetCombo returns a combo within the tenant.
func (s *MemoryStore) GetCombo(_ context.Context, tenantID string, id uuid.UUID) (Combo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.combos[tenantID][id]
	if !ok {
		return Combo{}, ErrNotFound
	}
	return c, nil
}

// ListCombos returns all combos for the tenant sorted by name.
func (s *MemoryStore) ListCombos(_ context.Context, tenantID string) ([]Combo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Combo, 0, len(s.combos[tenantID]))
	for _, c := range s.combos[tenantID] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SaveCombo inserts or replaces a combo.
func (s *MemoryStore) SaveCombo(_ context.Context, c Combo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.combos[c.TenantID] == nil {
		s.combos[c.TenantID] = make(map[uuid.UUID]Combo)
	}
	s.combos[c.TenantID][c.ID] = c
	return nil
}
