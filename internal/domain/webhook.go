package domain

import "time"

// WebhookStatus описывает стадию обработки входящего webhook-события.
type WebhookStatus string

const (
	// WebhookStatusPending — событие сохранено, обработка ещё не завершена.
	WebhookStatusPending WebhookStatus = "pending"
	// WebhookStatusProcessed — обработчик отработал без ошибок.
	WebhookStatusProcessed WebhookStatus = "processed"
	// WebhookStatusFailed — событие распознано как необрабатываемое (неизвестный тип).
	WebhookStatusFailed WebhookStatus = "failed"
)

// WebhookEventType — декларируемый шлюзом тип платёжного события.
type WebhookEventType string

const (
	WebhookEventPaymentSuccess  WebhookEventType = "payment.success"
	WebhookEventPaymentFailed   WebhookEventType = "payment.failed"
	WebhookEventPaymentRefunded WebhookEventType = "payment.refunded"
)

// WebhookEvent — неизменяемый журнал входящих уведомлений платёжных шлюзов.
// Используется для дедупликации (unique constraint на IdempotencyKey) и аудита.
// Мутируются только Status и ProcessedAt.
type WebhookEvent struct {
	ID string
	// IdempotencyKey — присланный шлюзом event_id либо SHA-256 от payload.
	IdempotencyKey string
	// Source — код шлюза-отправителя.
	Source      string
	EventType   WebhookEventType
	Payload     []byte
	Status      WebhookStatus
	ProcessedAt *time.Time
	CreatedAt   time.Time
}

// Processed сообщает, что событие уже успешно обработано и повторная доставка — no-op.
func (e *WebhookEvent) Processed() bool {
	return e.Status == WebhookStatusProcessed
}
