// Package order coordinates order placement, status transitions and
// cancellation across the catalog, pricing, combo and stock packages.
package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-canteen/internal/pricing"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusServed    Status = "served"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	// StatusFailed marks an order whose stock commit lost a race. Terminal,
	// never reachable through the public transition API.
	StatusFailed Status = "failed"
)

// ValidStatus reports whether s is a known lifecycle state.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusReady,
		StatusServed, StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusServed, StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// forward holds the legal forward moves; cancellation is handled separately
// since any non-terminal state may cancel.
var forward = map[Status][]Status{
	StatusPending:   {StatusConfirmed},
	StatusConfirmed: {StatusPreparing},
	StatusPreparing: {StatusReady},
	StatusReady:     {StatusServed, StatusCompleted},
}

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to Status) bool {
	if to == StatusCancelled {
		return !from.Terminal()
	}
	for _, next := range forward[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Channel is the sales channel an order arrived through.
type Channel string

const (
	ChannelPos    Channel = "pos"
	ChannelKiosk  Channel = "kiosk"
	ChannelQR     Channel = "qr"
	ChannelStaff  Channel = "staff"
	ChannelOnline Channel = "online"
)

// ValidChannel reports whether c is a known channel.
func ValidChannel(c Channel) bool {
	switch c {
	case ChannelPos, ChannelKiosk, ChannelQR, ChannelStaff, ChannelOnline:
		return true
	}
	return false
}

// LineItem is one order line. Pricing fields are snapshots taken at placement
// so later product edits never change history. Consumption maps product id to
// the stock units this line consumed, already exploded for combos.
type LineItem struct {
	ID           uuid.UUID             `json:"id"`
	ProductID    *uuid.UUID            `json:"productId,omitempty"`
	ComboID      *uuid.UUID            `json:"comboId,omitempty"`
	Name         string                `json:"name"`
	Quantity     int64                 `json:"quantity"`
	Variants     map[string]string     `json:"variants,omitempty"`
	UnitPrice    decimal.Decimal       `json:"unitPrice"`
	TaxRate      decimal.Decimal       `json:"taxRate"`
	GSTType      pricing.GSTType       `json:"gstType"`
	DiscountPct  decimal.Decimal       `json:"discountPercentage"`
	Gross        decimal.Decimal       `json:"gross"`
	Discount     decimal.Decimal       `json:"discount"`
	Tax          decimal.Decimal       `json:"tax"`
	Contribution decimal.Decimal       `json:"contribution"`
	Consumption  map[uuid.UUID]float64 `json:"consumption"`
	Cancelled    bool                  `json:"cancelled"`
	CancelReason string                `json:"cancelReason,omitempty"`
	CancelledBy  string                `json:"cancelledBy,omitempty"`
}

// PricingLine rebuilds the pricing input from the stored snapshot.
func (li LineItem) PricingLine() pricing.Line {
	return pricing.Line{
		UnitPrice:   li.UnitPrice,
		Quantity:    li.Quantity,
		TaxRate:     li.TaxRate,
		GSTType:     li.GSTType,
		DiscountPct: li.DiscountPct,
	}
}

// AuditEntry records one lifecycle event on the order.
type AuditEntry struct {
	Action string    `json:"action"`
	At     time.Time `json:"at"`
	Actor  string    `json:"actor"`
}

// Order is a placed canteen order scoped to one tenant.
type Order struct {
	ID            uuid.UUID         `json:"id"`
	TenantID      string            `json:"tenantId"`
	Channel       Channel           `json:"channel"`
	CustomerName  string            `json:"customerName,omitempty"`
	CustomerPhone string            `json:"customerPhone,omitempty"`
	Status        Status            `json:"status"`
	Items         []LineItem        `json:"items"`
	Totals        pricing.Breakdown `json:"totals"`
	Audit         []AuditEntry      `json:"audit"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// Ref is the stable reference used for stock idempotency keys.
func (o Order) Ref() string {
	return o.ID.String()
}

// ActiveItems returns the non-cancelled lines.
func (o Order) ActiveItems() []LineItem {
	active := make([]LineItem, 0, len(o.Items))
	for _, li := range o.Items {
		if !li.Cancelled {
			active = append(active, li)
		}
	}
	return active
}

// RecomputeTotals reprices the order from its active lines' snapshots.
func (o *Order) RecomputeTotals() {
	lines := make([]pricing.Line, 0, len(o.Items))
	for _, li := range o.Items {
		if li.Cancelled {
			continue
		}
		lines = append(lines, li.PricingLine())
	}
	o.Totals = pricing.Compute(lines)
}

// ChannelStat is one row of the per-channel aggregate projection. Revenue
// excludes cancelled and failed orders; Count follows the caller's choice on
// cancelled orders.
type ChannelStat struct {
	Channel       Channel         `json:"channel"`
	Count         int64           `json:"count"`
	SumGrandTotal decimal.Decimal `json:"sumGrandTotal"`
}
