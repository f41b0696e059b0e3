package domain

import (
	"context"
	"time"
)

// OrderTx — транзакционный scope уровня одного заказа.
// Строка заказа удерживается под блокировкой на всё время работы fn в Ledger.WithOrder,
// поэтому два конкурентных webhook по одному заказу сериализуются хранилищем.
type OrderTx interface {
	// Order возвращает заказ с позициями, загруженный под блокировкой.
	Order() *Order
	// UpdateOrder сохраняет изменённые поля заказа (статус, платёжное состояние, метки времени).
	UpdateOrder(order Order) error
	// UpdateItem сохраняет изменённые поля позиции.
	UpdateItem(item OrderItem) error
	// InsertPayment добавляет платёжную запись.
	InsertPayment(p Payment) error
	// MarkLatestPaymentRefunded переводит последнюю captured-запись в refunded.
	MarkLatestPaymentRefunded(amountMinor int64, reason string) error
	// InsertResource сохраняет provisioned-ресурс.
	InsertResource(res ProvisionedResource) error
	// AppendAudit добавляет запись аудита.
	AppendAudit(entry AuditEntry) error
	// EnqueueOutbox ставит событие в transactional outbox той же транзакцией.
	EnqueueOutbox(msg OutboxMessage) error
	// AddCredits пополняет внутренний кредитный баланс клиента.
	AddCredits(customerID string, amountMinor int64) error
}

// Ledger — хранилище заказов с транзакционной семантикой уровня заказа.
type Ledger interface {
	// CreateOrder сохраняет новый заказ с позициями.
	CreateOrder(ctx context.Context, order Order) error
	// GetOrder возвращает заказ с позициями или ErrOrderNotFound.
	GetOrder(ctx context.Context, id string) (Order, error)
	// ListOrdersByCustomer возвращает заказы клиента, ограничивая выборку limit (если >0).
	ListOrdersByCustomer(ctx context.Context, customerID string, limit int) ([]Order, error)
	// WithOrder выполняет fn в транзакции с эксклюзивной блокировкой строки заказа.
	// Ошибка fn откатывает все записи транзакции.
	WithOrder(ctx context.Context, orderID string, fn func(tx OrderTx) error) error
}

// CustomerRepository хранит профили клиентов.
type CustomerRepository interface {
	Get(ctx context.Context, id string) (Customer, error)
	Create(ctx context.Context, customer Customer) error
}

// ContactRepository хранит контактные профили регистратора.
type ContactRepository interface {
	// FindByCustomer возвращает контакт клиента или ErrContactNotFound.
	FindByCustomer(ctx context.Context, customerID string) (Contact, error)
	Create(ctx context.Context, contact Contact) error
}

// WebhookEventRepository хранит журнал входящих webhook-событий.
type WebhookEventRepository interface {
	// Create сохраняет новое событие; ErrDuplicateWebhook при конфликте idempotency key.
	Create(ctx context.Context, event WebhookEvent) error
	// FindByKey возвращает событие по idempotency key или ErrWebhookNotFound.
	FindByKey(ctx context.Context, key string) (WebhookEvent, error)
	// MarkProcessed переводит событие в processed с меткой времени.
	MarkProcessed(ctx context.Context, id string) error
	// MarkFailed помечает событие необрабатываемым.
	MarkFailed(ctx context.Context, id string) error
}

// WebhookEventPurger удаляет обработанные webhook-события старше порога retention.
// Pending-события не трогаются: они ещё ждут redelivery.
type WebhookEventPurger interface {
	// DeleteProcessedBefore удаляет до limit записей со статусом processed/failed,
	// обработанных раньше before. Возвращает число удалённых записей.
	DeleteProcessedBefore(before time.Time, limit int) (int, error)
}

// PaymentRepository читает платёжные записи; добавляются через OrderTx.InsertPayment.
type PaymentRepository interface {
	ListPayments(ctx context.Context, orderID string) ([]Payment, error)
}

// AuditRepository читает журнал аудита; записи добавляются через OrderTx.AppendAudit.
type AuditRepository interface {
	ListAudit(ctx context.Context, orderID string) ([]AuditEntry, error)
}

// ResourceRepository читает provisioned-ресурсы; записи добавляются через OrderTx.
type ResourceRepository interface {
	ListResources(ctx context.Context, orderID string) ([]ProvisionedResource, error)
}
