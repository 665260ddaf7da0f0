package events

// Topic constants for domain events emitted by the canteen core.
const (
	TopicOrderPlaced        = "order.placed"
	TopicOrderStatusChanged = "order.status_changed"
	TopicOrderCancelled     = "order.cancelled"
	TopicOrderItemCancelled = "order.item_cancelled"
	TopicOrderFailed        = "order.failed"
	TopicStockAdjusted      = "stock.adjusted"
)

// DefaultTopics returns the canonical list of emitted topics.
func DefaultTopics() []string {
	return []string{
		TopicOrderPlaced,
		TopicOrderStatusChanged,
		TopicOrderCancelled,
		TopicOrderItemCancelled,
		TopicOrderFailed,
		TopicStockAdjusted,
	}
}
