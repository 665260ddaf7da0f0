package stock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type productKey struct {
	tenantID  string
	productID uuid.UUID
}

type memorySheet struct {
	mu      sync.Mutex
	sheet   Sheet
	lastSeq int64
}

// MemorySheetStore is an in-memory SheetStore. Writes to one sheet are
// serialized by a per-sheet mutex.
type MemorySheetStore struct {
	mu     sync.Mutex
	sheets map[productKey]map[YearMonth]*memorySheet
	Now    func() time.Time
}

// NewMemorySheetStore returns an empty MemorySheetStore.
func NewMemorySheetStore() *MemorySheetStore {
	return &MemorySheetStore{sheets: make(map[productKey]map[YearMonth]*memorySheet)}
}

func (s *MemorySheetStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// locked fetches or creates the sheet holder for key. Creation seeds the
// opening balance with the closing of the most recent earlier sheet.
func (s *MemorySheetStore) holder(key SheetKey, create bool) *memorySheet {
	s.mu.Lock()
	defer s.mu.Unlock()
	pk := productKey{key.TenantID, key.ProductID}
	months := s.sheets[pk]
	if months == nil {
		if !create {
			return nil
		}
		months = make(map[YearMonth]*memorySheet)
		s.sheets[pk] = months
	}
	if ms, ok := months[key.Month]; ok {
		return ms
	}
	if !create {
		return nil
	}
	opening := 0.0
	var prev *memorySheet
	var prevMonth YearMonth
	for ym, ms := range months {
		if ym.Before(key.Month) && (prev == nil || prevMonth.Before(ym)) {
			prev, prevMonth = ms, ym
		}
	}
	if prev != nil {
		prev.mu.Lock()
		opening = prev.sheet.Closing()
		prev.mu.Unlock()
	}
	ms := &memorySheet{sheet: Sheet{Key: key, Opening: opening}}
	months[key.Month] = ms
	return ms
}

// AppendEntries implements SheetStore.
func (s *MemorySheetStore) AppendEntries(_ context.Context, key SheetKey, entries []Entry, check func(Sheet) error) (Sheet, error) {
	ms := s.holder(key, true)
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if check != nil {
		if err := check(cloneSheet(ms.sheet)); err != nil {
			return Sheet{}, err
		}
	}
	for _, e := range entries {
		if e.IdemKey != "" && ms.sheet.HasIdemKey(e.IdemKey) {
			continue
		}
		ms.lastSeq++
		e.Seq = ms.lastSeq
		if e.EntryID == uuid.Nil {
			e.EntryID = uuid.New()
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = s.now()
		}
		ms.sheet.Entries = append(ms.sheet.Entries, e)
	}
	return cloneSheet(ms.sheet), nil
}

// Get implements SheetStore.
func (s *MemorySheetStore) Get(_ context.Context, key SheetKey) (Sheet, bool, error) {
	ms := s.holder(key, false)
	if ms == nil {
		return Sheet{}, false, nil
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return cloneSheet(ms.sheet), true, nil
}

// Latest implements SheetStore.
func (s *MemorySheetStore) Latest(_ context.Context, tenantID string, productID uuid.UUID) (Sheet, bool, error) {
	s.mu.Lock()
	months := s.sheets[productKey{tenantID, productID}]
	var latest *memorySheet
	var latestMonth YearMonth
	for ym, ms := range months {
		if latest == nil || latestMonth.Before(ym) {
			latest, latestMonth = ms, ym
		}
	}
	s.mu.Unlock()
	if latest == nil {
		return Sheet{}, false, nil
	}
	latest.mu.Lock()
	defer latest.mu.Unlock()
	return cloneSheet(latest.sheet), true, nil
}

// HasEntries implements SheetStore.
func (s *MemorySheetStore) HasEntries(_ context.Context, tenantID string, idemKey string) (bool, error) {
	if idemKey == "" {
		return false, nil
	}
	s.mu.Lock()
	holders := make([]*memorySheet, 0)
	for pk, months := range s.sheets {
		if pk.tenantID != tenantID {
			continue
		}
		for _, ms := range months {
			holders = append(holders, ms)
		}
	}
	s.mu.Unlock()
	for _, ms := range holders {
		ms.mu.Lock()
		found := ms.sheet.HasIdemKey(idemKey)
		ms.mu.Unlock()
		if found {
			return true, nil
		}
	}
	return false, nil
}

func cloneSheet(sheet Sheet) Sheet {
	out := sheet
	out.Entries = make([]Entry, len(sheet.Entries))
	copy(out.Entries, sheet.Entries)
	return out
}
