package domain

import "time"

// AuditAction — тип записываемого в аудит действия.
type AuditAction string

const (
	AuditActionPaymentSuccess  AuditAction = "payment.success"
	AuditActionPaymentFailed   AuditAction = "payment.failed"
	AuditActionPaymentRefunded AuditAction = "payment.refunded"
	AuditActionItemProvisioned AuditAction = "item.provisioned"
	AuditActionItemFailed      AuditAction = "item.failed"
	AuditActionItemRetried     AuditAction = "item.retried"
	AuditActionOrderPromoted   AuditAction = "order.promoted"
)

// AuditEntry — append-only запись о каждом изменяющем состояние действии.
type AuditEntry struct {
	ID string
	// Actor — инициатор: "webhook", "operator" или system-компонент.
	Actor   string
	Action  AuditAction
	OrderID string
	ItemID  string
	// BeforeStatus/AfterStatus фиксируют переход статуса, если он был.
	BeforeStatus string
	AfterStatus  string
	// Metadata — произвольный JSON с деталями (сумма, transaction id, текст ошибки).
	Metadata  []byte
	CreatedAt time.Time
}
