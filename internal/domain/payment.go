package domain

import "time"

// PaymentStatus описывает состояние платёжной записи.
type PaymentStatus string

const (
	// PaymentStatusCaptured — деньги списаны в пользу реселлера.
	PaymentStatusCaptured PaymentStatus = "captured"
	// PaymentStatusFailed — шлюз отклонил платёж или произошла ошибка.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded — деньги возвращены клиенту полностью или частично.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Payment описывает одну платёжную запись заказа.
// У заказа может накапливаться несколько записей: capture, позже refund.
type Payment struct {
	ID      string
	OrderID string
	// Gateway — код платёжного шлюза (например, "stripe", "razorpay").
	Gateway string
	// ExternalTransactionID может быть пустым, если шлюз не вернул идентификатор.
	ExternalTransactionID string
	Status                PaymentStatus
	AmountMinor           int64
	Currency              string
	RefundedMinor         int64
	// FailureReason заполняется для failed-записей.
	FailureReason string
	// RefundReason заполняется при переводе записи в refunded.
	RefundReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate проверяет корректность полей платежа и возвращает ошибки, если они есть.
func (p *Payment) Validate() []error {
	var errs []error

	if p.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if p.Gateway == "" {
		errs = append(errs, ErrPaymentGatewayRequired)
	}
	if p.AmountMinor < 0 {
		errs = append(errs, ErrPaymentAmountNegative)
	}
	if p.RefundedMinor < 0 || p.RefundedMinor > p.AmountMinor {
		errs = append(errs, ErrRefundAmountInvalid)
	}

	return errs
}

// PaymentNotice — данные платёжного события, приходящие из webhook.
type PaymentNotice struct {
	OrderID       string
	TransactionID string
	Gateway       string
	AmountMinor   int64
	Currency      string
	Reason        string
}
