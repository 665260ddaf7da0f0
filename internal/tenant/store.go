package tenant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-canteen/internal/common"
)

// ErrNotFound indicates an unknown theater.
var ErrNotFound = errors.New("tenant: theater not found")

// Theater is the top-level isolation unit. Orders and stock records are
// always scoped to exactly one theater.
type Theater struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Active         bool      `json:"active"`
	AgreementStart time.Time `json:"agreementStart"`
	AgreementEnd   time.Time `json:"agreementEnd"`
}

// InAgreement reports whether the theater's agreement window covers now.
func (t Theater) InAgreement(now time.Time) bool {
	if !t.Active {
		return false
	}
	if !t.AgreementStart.IsZero() && now.Before(t.AgreementStart) {
		return false
	}
	if !t.AgreementEnd.IsZero() && now.After(t.AgreementEnd) {
		return false
	}
	return true
}

// Store looks up theaters by id.
type Store interface {
	Get(ctx context.Context, id string) (Theater, error)
}

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu       sync.RWMutex
	theaters map[string]Theater
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{theaters: make(map[string]Theater)}
}

// Get returns the theater if known.
func (s *MemoryStore) Get(_ context.Context, id string) (Theater, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.theaters[id]
	if !ok {
		return Theater{}, ErrNotFound
	}
	return t, nil
}

// Save inserts or replaces a theater.
func (s *MemoryStore) Save(t Theater) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.theaters[t.ID] = t
}

// PostgresStore loads theaters from Postgres.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

// Get returns the theater if known.
func (s *PostgresStore) Get(ctx context.Context, id string) (Theater, error) {
	var t Theater
	err := s.Pool.QueryRow(ctx, `
SELECT id, name, active, agreement_start, agreement_end
FROM theaters WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.Active, &t.AgreementStart, &t.AgreementEnd)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Theater{}, ErrNotFound
		}
		return Theater{}, fmt.Errorf("load theater: %w", err)
	}
	return t, nil
}

// Guard rejects requests whose resolved tenant is unknown, inactive, or
// outside its agreement window.
type Guard struct {
	Store Store
	Now   func() time.Time
}

func (g Guard) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// Middleware enforces the tenant guard.
func (g Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := FromContext(r.Context())
		if !ok {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidationFailed, "tenant is required", nil)
			return
		}
		if g.Store == nil {
			next.ServeHTTP(w, r)
			return
		}
		theater, err := g.Store.Get(r.Context(), tenantID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				common.JSONError(w, http.StatusForbidden, common.CodeAccessDenied, "unknown tenant", nil)
				return
			}
			common.RenderError(w, err)
			return
		}
		if !theater.InAgreement(g.now()) {
			common.JSONError(w, http.StatusForbidden, common.CodeAccessDenied, "tenant agreement is not active", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
