package kafka

import "time"

// EventType определяет тип публикуемого события
type EventType string

const (
	// События жизненного цикла заказа
	EventTypeOrderCompleted       EventType = "order.completed"
	EventTypeOrderPartiallyFailed EventType = "order.partially_failed"
	EventTypeOrderFailed          EventType = "order.failed"
	EventTypeOrderRefunded        EventType = "order.refunded"

	// Платёжные события
	EventTypePaymentFailed EventType = "payment.failed"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "resellerd.order.events"
	TopicDeadLetterQueue = "resellerd.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent представляет подтверждение по заказу для внешних потребителей
// (storefront, billing): итоговый статус provisioning или refund.
type OrderEvent struct {
	EventType  EventType              `json:"event_type"`
	OrderID    string                 `json:"order_id"`
	CustomerID string                 `json:"customer_id"`
	Status     string                 `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// NewOrderEvent создает новое событие заказа
func NewOrderEvent(eventType EventType, orderID, customerID, status string, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType:  eventType,
		OrderID:    orderID,
		CustomerID: customerID,
		Status:     status,
		Timestamp:  time.Now(),
		Metadata:   metadata,
	}
}
