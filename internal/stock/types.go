// Package stock maintains per-product monthly stock sheets and transient
// cart reservations. All sheet writes are serialized per (tenant, product,
// month) and kept non-negative.
package stock

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EntryKind classifies a stock movement.
type EntryKind string

const (
	KindPurchase   EntryKind = "purchase"
	KindAdjustment EntryKind = "adjustment"
	KindSale       EntryKind = "sale"
	KindReturn     EntryKind = "return"
	KindWaste      EntryKind = "waste"
)

// ValidKind reports whether k is a known entry kind.
func ValidKind(k EntryKind) bool {
	switch k {
	case KindPurchase, KindAdjustment, KindSale, KindReturn, KindWaste:
		return true
	}
	return false
}

// Entry is one append-only stock movement. Seq is assigned by the store and
// gives a deterministic replay order within the sheet. IdemKey, when set,
// makes the append replay-safe: a second append with the same key is a no-op.
type Entry struct {
	EntryID   uuid.UUID `json:"entryId"`
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Kind      EntryKind `json:"kind"`
	Delta     float64   `json:"delta"`
	Reason    string    `json:"reason,omitempty"`
	OrderRef  string    `json:"orderRef,omitempty"`
	IdemKey   string    `json:"-"`
}

// SaleIdemKey is the idempotency key for order sale entries: one per
// (orderRef, productId) pair since keys are scoped to a product's sheets.
func SaleIdemKey(orderRef string) string {
	return "sale:" + orderRef
}

// CancelIdemKey is the idempotency key for line-cancel compensating entries.
func CancelIdemKey(orderRef, itemRef string) string {
	return fmt.Sprintf("cancel:%s:%s", orderRef, itemRef)
}

// UnwindIdemKey is the idempotency key for entries that roll back a
// partially committed order.
func UnwindIdemKey(orderRef string) string {
	return "unwind:" + orderRef
}

// YearMonth identifies a monthly sheet.
type YearMonth struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// MonthOf returns the YearMonth containing t.
func MonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// Before reports whether ym is strictly earlier than other.
func (ym YearMonth) Before(other YearMonth) bool {
	if ym.Year != other.Year {
		return ym.Year < other.Year
	}
	return ym.Month < other.Month
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// SheetKey identifies one monthly sheet.
type SheetKey struct {
	TenantID  string
	ProductID uuid.UUID
	Month     YearMonth
}

// Sheet is a monthly stock sheet: an opening balance plus an append-only
// entry list.
type Sheet struct {
	Key     SheetKey `json:"key"`
	Opening float64  `json:"opening"`
	Entries []Entry  `json:"entries"`
}

// Closing returns opening plus the sum of all entry deltas.
func (s Sheet) Closing() float64 {
	total := s.Opening
	for _, e := range s.Entries {
		total += e.Delta
	}
	return total
}

// ClosingAt returns the balance considering only entries with seq <= maxSeq.
func (s Sheet) ClosingAt(maxSeq int64) float64 {
	total := s.Opening
	for _, e := range s.Entries {
		if e.Seq <= maxSeq {
			total += e.Delta
		}
	}
	return total
}

// HasIdemKey reports whether an entry with the given idempotency key exists.
func (s Sheet) HasIdemKey(key string) bool {
	if key == "" {
		return false
	}
	for _, e := range s.Entries {
		if e.IdemKey == key {
			return true
		}
	}
	return false
}
