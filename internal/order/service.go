package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-canteen/internal/catalog"
	"github.com/noah-isme/backend-canteen/internal/common"
	"github.com/noah-isme/backend-canteen/internal/events"
	"github.com/noah-isme/backend-canteen/internal/obs"
	"github.com/noah-isme/backend-canteen/internal/pricing"
	"github.com/noah-isme/backend-canteen/internal/stock"
)

// Coordinator drives order placement, status transitions and cancellation
// across the catalog, pricing, combo and stock layers.
type Coordinator struct {
	Catalog *catalog.Service
	Stock   *stock.Ledger
	Orders  Store
	Events  *events.Bus
	Now     func() time.Time
	Logger  *zerolog.Logger
}

func (c *Coordinator) now() time.Time {
	if c != nil && c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Coordinator) log() *zerolog.Logger {
	if c != nil && c.Logger != nil {
		return c.Logger
	}
	nop := zerolog.Nop()
	return &nop
}

// PlaceItem is one requested order line. Exactly one of ProductID / ComboID
// must be set.
type PlaceItem struct {
	ProductID *uuid.UUID        `json:"productId,omitempty"`
	ComboID   *uuid.UUID        `json:"comboId,omitempty"`
	Quantity  int64             `json:"quantity" validate:"required,gt=0"`
	Variants  map[string]string `json:"variants,omitempty"`
}

// PlaceInput is the place-order request.
type PlaceInput struct {
	Channel       Channel     `json:"channel" validate:"required"`
	CustomerName  string      `json:"customerName,omitempty"`
	CustomerPhone string      `json:"customerPhone,omitempty"`
	Items         []PlaceItem `json:"items" validate:"required,min=1,dive"`
}

// PlaceOrder runs the placement flow: resolve every reference, price the
// lines, reserve stock for every product contribution, persist the order as
// pending, then commit the reservations under the order's reference. Any
// failure before the commit releases everything acquired; a commit conflict
// leaves the order in the terminal failed state.
func (c *Coordinator) PlaceOrder(ctx context.Context, tenantID string, actor common.Principal, input PlaceInput) (Order, error) {
	if c == nil || c.Catalog == nil || c.Stock == nil || c.Orders == nil {
		return Order{}, errors.New("order coordinator not configured")
	}
	if !ValidChannel(input.Channel) {
		return Order{}, common.NewAppError(common.CodeValidationFailed,
			fmt.Sprintf("unknown channel %q", input.Channel), http.StatusBadRequest, nil)
	}
	if len(input.Items) == 0 {
		return Order{}, common.NewAppError(common.CodeValidationFailed,
			"order needs at least one item", http.StatusBadRequest, nil)
	}

	now := c.now()
	o := Order{
		ID:            uuid.New(),
		TenantID:      tenantID,
		Channel:       input.Channel,
		CustomerName:  input.CustomerName,
		CustomerPhone: input.CustomerPhone,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
		Audit:         []AuditEntry{{Action: "created", At: now, Actor: actor.UserID}},
	}

	items, err := c.buildItems(ctx, tenantID, input.Items)
	if err != nil {
		return Order{}, err
	}
	o.Items = items
	o.RecomputeTotals()

	cartID := "order:" + o.ID.String()
	if err := c.reserveAll(ctx, tenantID, cartID, items); err != nil {
		return Order{}, err
	}

	if err := c.Orders.Create(ctx, o); err != nil {
		_ = c.Stock.Release(ctx, tenantID, cartID, nil)
		return Order{}, fmt.Errorf("persist order: %w", err)
	}

	if err := c.Stock.Commit(ctx, tenantID, cartID, o.Ref(), o.CreatedAt); err != nil {
		o.Status = StatusFailed
		o.UpdatedAt = c.now()
		o.Audit = append(o.Audit, AuditEntry{Action: "failed", At: o.UpdatedAt, Actor: actor.UserID})
		if updateErr := c.Orders.Update(ctx, o); updateErr != nil {
			c.log().Error().Err(updateErr).Str("order_id", o.Ref()).Msg("mark order failed")
		}
		_ = c.Stock.Release(ctx, tenantID, cartID, nil)
		c.emit(ctx, tenantID, events.TopicOrderFailed, o.ID, map[string]any{"reason": err.Error()})
		countPlaced(o.Channel, "failed")
		return Order{}, err
	}

	countPlaced(o.Channel, "ok")
	c.logTransition(o, "", StatusPending, actor)
	c.emit(ctx, tenantID, events.TopicOrderPlaced, o.ID, map[string]any{
		"channel":    string(o.Channel),
		"grandTotal": o.Totals.GrandTotal.StringFixed(2),
		"items":      len(o.Items),
	})
	return o, nil
}

// buildItems resolves each requested line and snapshots pricing and
// consumption. Combo lines explode into per-component consumption.
func (c *Coordinator) buildItems(ctx context.Context, tenantID string, requested []PlaceItem) ([]LineItem, error) {
	items := make([]LineItem, 0, len(requested))
	for _, req := range requested {
		if req.Quantity <= 0 {
			return nil, common.NewAppError(common.CodeValidationFailed,
				"item quantity must be positive", http.StatusBadRequest, nil)
		}
		li := LineItem{
			ID:          uuid.New(),
			Quantity:    req.Quantity,
			Variants:    req.Variants,
			Consumption: make(map[uuid.UUID]float64),
		}
		switch {
		case req.ProductID != nil:
			p, err := c.Catalog.ResolveProduct(ctx, tenantID, *req.ProductID)
			if err != nil {
				return nil, err
			}
			units, err := p.Consumption(float64(req.Quantity))
			if err != nil {
				return nil, fmt.Errorf("line consumption: %w", err)
			}
			li.ProductID = &p.ID
			li.Name = p.Name
			li.UnitPrice = p.SellingPrice
			li.TaxRate = p.TaxRate
			li.GSTType = p.GSTType
			li.DiscountPct = p.DiscountPct
			li.Consumption[p.ID] = units
		case req.ComboID != nil:
			offer, products, err := c.Catalog.ResolveCombo(ctx, tenantID, *req.ComboID)
			if err != nil {
				return nil, err
			}
			for i, comp := range offer.Components {
				units, err := products[i].Consumption(float64(req.Quantity) * comp.QuantityPerCombo)
				if err != nil {
					return nil, fmt.Errorf("combo consumption: %w", err)
				}
				li.Consumption[comp.ProductID] += units
			}
			li.ComboID = &offer.ID
			li.Name = offer.Name
			li.UnitPrice = offer.SellingPrice
			li.TaxRate = offer.TaxRate
			li.GSTType = offer.GSTType
			li.DiscountPct = offer.DiscountPct
		default:
			return nil, common.NewAppError(common.CodeValidationFailed,
				"item names neither a product nor a combo", http.StatusBadRequest, nil)
		}
		res := pricing.ComputeLine(li.PricingLine())
		li.Gross, li.Discount, li.Tax, li.Contribution = res.Gross, res.Discount, res.Tax, res.Contribution
		items = append(items, li)
	}
	return items, nil
}

// reserveAll reserves the summed consumption of every product contribution.
// Partial failure releases everything acquired and surfaces
// INSUFFICIENT_STOCK naming the first offending product.
func (c *Coordinator) reserveAll(ctx context.Context, tenantID, cartID string, items []LineItem) error {
	needs := make(map[uuid.UUID]float64)
	for _, li := range items {
		for productID, units := range li.Consumption {
			needs[productID] += units
		}
	}
	products := make([]uuid.UUID, 0, len(needs))
	for id := range needs {
		products = append(products, id)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].String() < products[j].String() })

	for _, productID := range products {
		if err := c.Stock.Reserve(ctx, tenantID, cartID, productID, needs[productID]); err != nil {
			_ = c.Stock.Release(ctx, tenantID, cartID, nil)
			if appErr, ok := common.AsAppError(err); ok && appErr.Code == common.CodeOutOfStock {
				return &common.AppError{
					Code:       common.CodeInsufficientStock,
					Message:    "not enough stock for order",
					HTTPStatus: http.StatusConflict,
					Err:        appErr.Err,
					Details:    appErr.Details,
				}
			}
			return err
		}
	}
	return nil
}

// Get returns the order within the tenant.
func (c *Coordinator) Get(ctx context.Context, tenantID string, id uuid.UUID) (Order, error) {
	o, err := c.Orders.Get(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Order{}, common.NewAppError(common.CodeNotFound, "order not found", http.StatusNotFound, err)
		}
		return Order{}, fmt.Errorf("load order: %w", err)
	}
	return o, nil
}

// UpdateStatus applies a staff-driven transition. Moving to cancelled returns
// the stock of every active line.
func (c *Coordinator) UpdateStatus(ctx context.Context, tenantID string, id uuid.UUID, to Status, actor common.Principal) (Order, error) {
	if !ValidStatus(to) || to == StatusFailed {
		return Order{}, common.NewAppError(common.CodeValidationFailed,
			fmt.Sprintf("unknown status %q", to), http.StatusBadRequest, nil)
	}
	if !actor.IsStaff() {
		return Order{}, common.NewAppError(common.CodeAccessDenied,
			"only staff may change order status", http.StatusForbidden, nil)
	}
	o, err := c.Get(ctx, tenantID, id)
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(o.Status, to) {
		return Order{}, illegalTransition(o.Status, to)
	}

	from := o.Status
	if to == StatusCancelled {
		if err := c.returnActiveLines(ctx, &o, actor, "cancelled by staff"); err != nil {
			return Order{}, err
		}
	}
	o.Status = to
	o.UpdatedAt = c.now()
	o.Audit = append(o.Audit, AuditEntry{Action: string(to), At: o.UpdatedAt, Actor: actor.UserID})
	if err := c.Orders.Update(ctx, o); err != nil {
		return Order{}, fmt.Errorf("update order: %w", err)
	}

	c.logTransition(o, from, to, actor)
	topic := events.TopicOrderStatusChanged
	if to == StatusCancelled {
		topic = events.TopicOrderCancelled
	}
	c.emit(ctx, tenantID, topic, o.ID, map[string]any{"from": string(from), "to": string(to)})
	return o, nil
}

// CancelItem cancels one active line on a non-terminal order, returns its
// stock with an idempotent compensating entry, and recomputes totals. When no
// active lines remain the order transitions to cancelled.
func (c *Coordinator) CancelItem(ctx context.Context, tenantID string, orderID, itemID uuid.UUID, reason string, actor common.Principal) (Order, error) {
	if !actor.IsStaff() {
		return Order{}, common.NewAppError(common.CodeAccessDenied,
			"only staff may cancel order lines", http.StatusForbidden, nil)
	}
	o, err := c.Get(ctx, tenantID, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.Status.Terminal() {
		return Order{}, illegalTransition(o.Status, StatusCancelled)
	}

	idx := -1
	for i, li := range o.Items {
		if li.ID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Order{}, common.NewAppError(common.CodeNotFound, "order line not found", http.StatusNotFound, nil)
	}
	if o.Items[idx].Cancelled {
		// Already cancelled: idempotent, current state returned as is.
		return o, nil
	}

	if err := c.returnLine(ctx, tenantID, o.Ref(), o.Items[idx]); err != nil {
		return Order{}, err
	}
	o.Items[idx].Cancelled = true
	o.Items[idx].CancelReason = reason
	o.Items[idx].CancelledBy = actor.UserID
	o.RecomputeTotals()
	o.UpdatedAt = c.now()
	o.Audit = append(o.Audit, AuditEntry{Action: "item_cancelled:" + itemID.String(), At: o.UpdatedAt, Actor: actor.UserID})

	autoCancelled := false
	from := o.Status
	if len(o.ActiveItems()) == 0 && CanTransition(o.Status, StatusCancelled) {
		o.Status = StatusCancelled
		o.Audit = append(o.Audit, AuditEntry{Action: string(StatusCancelled), At: o.UpdatedAt, Actor: actor.UserID})
		autoCancelled = true
	}
	if err := c.Orders.Update(ctx, o); err != nil {
		return Order{}, fmt.Errorf("update order: %w", err)
	}

	c.emit(ctx, tenantID, events.TopicOrderItemCancelled, o.ID, map[string]any{
		"itemId": itemID.String(),
		"reason": reason,
	})
	if autoCancelled {
		c.logTransition(o, from, StatusCancelled, actor)
		c.emit(ctx, tenantID, events.TopicOrderCancelled, o.ID, map[string]any{"reason": "all lines cancelled"})
	}
	return o, nil
}

// CustomerCancel is the self-service cancel: allowed only while the order is
// pending or confirmed, and only when the supplied phone matches the order.
func (c *Coordinator) CustomerCancel(ctx context.Context, tenantID string, orderID uuid.UUID, phone string) (Order, error) {
	o, err := c.Get(ctx, tenantID, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.Status != StatusPending && o.Status != StatusConfirmed {
		return Order{}, illegalTransition(o.Status, StatusCancelled)
	}
	if phone == "" || o.CustomerPhone == "" || phone != o.CustomerPhone {
		return Order{}, common.NewAppError(common.CodeAccessDenied,
			"phone does not match the order", http.StatusForbidden, nil)
	}

	actor := common.Principal{UserID: "customer:" + phone, Role: common.RoleCustomer, Phone: phone}
	from := o.Status
	if err := c.returnActiveLines(ctx, &o, actor, "cancelled by customer"); err != nil {
		return Order{}, err
	}
	o.Status = StatusCancelled
	o.UpdatedAt = c.now()
	o.Audit = append(o.Audit, AuditEntry{Action: string(StatusCancelled), At: o.UpdatedAt, Actor: actor.UserID})
	if err := c.Orders.Update(ctx, o); err != nil {
		return Order{}, fmt.Errorf("update order: %w", err)
	}

	c.logTransition(o, from, StatusCancelled, actor)
	c.emit(ctx, tenantID, events.TopicOrderCancelled, o.ID, map[string]any{"by": "customer"})
	return o, nil
}

// returnActiveLines appends compensating return entries for every active
// line, marking each line cancelled.
func (c *Coordinator) returnActiveLines(ctx context.Context, o *Order, actor common.Principal, reason string) error {
	for i := range o.Items {
		if o.Items[i].Cancelled {
			continue
		}
		if err := c.returnLine(ctx, o.TenantID, o.Ref(), o.Items[i]); err != nil {
			return err
		}
		o.Items[i].Cancelled = true
		o.Items[i].CancelReason = reason
		o.Items[i].CancelledBy = actor.UserID
	}
	o.RecomputeTotals()
	return nil
}

// returnLine appends one compensating entry per product the line consumed,
// keyed by (order, item) so replays are no-ops.
func (c *Coordinator) returnLine(ctx context.Context, tenantID, orderRef string, li LineItem) error {
	products := make([]uuid.UUID, 0, len(li.Consumption))
	for id := range li.Consumption {
		products = append(products, id)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].String() < products[j].String() })
	for _, productID := range products {
		key := stock.CancelIdemKey(orderRef, li.ID.String()+":"+productID.String())
		if err := c.Stock.Return(ctx, tenantID, productID, li.Consumption[productID], orderRef, key, "line cancel"); err != nil {
			return fmt.Errorf("return line stock: %w", err)
		}
	}
	return nil
}

func (c *Coordinator) emit(ctx context.Context, tenantID, topic string, aggregateID uuid.UUID, payload any) {
	if c.Events == nil {
		return
	}
	if _, err := c.Events.Emit(ctx, tenantID, topic, aggregateID, payload); err != nil {
		c.log().Error().Err(err).Str("topic", topic).Msg("emit event")
	}
}

func countPlaced(channel Channel, result string) {
	if obs.OrdersPlacedTotal != nil {
		obs.OrdersPlacedTotal.WithLabelValues(string(channel), result).Inc()
	}
}

func (c *Coordinator) logTransition(o Order, from, to Status, actor common.Principal) {
	if obs.OrderTransitionsTotal != nil && to != "" {
		obs.OrderTransitionsTotal.WithLabelValues(string(to)).Inc()
	}
	c.log().Info().
		Str("tenant_id", o.TenantID).
		Str("order_id", o.Ref()).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("actor", actor.UserID).
		Msg("order_transition")
}

func illegalTransition(from, to Status) *common.AppError {
	return &common.AppError{
		Code:       common.CodeIllegalStateTransition,
		Message:    fmt.Sprintf("cannot move order from %s to %s", from, to),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"from": string(from), "to": string(to)},
	}
}
