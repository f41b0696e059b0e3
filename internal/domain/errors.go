package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной денежной составляющей заказа.
	ErrAmountNegative = errors.New("order amounts must be non-negative")
	// Ошибка нарушения формулы total = subtotal - discount + tax.
	ErrTotalMismatch = errors.New("order total does not match subtotal - discount + tax")
	// Ошибка несоответствия subtotal и суммы позиций.
	ErrSubtotalMismatch = errors.New("order subtotal does not match items sum")
	// Ошибка отрицательной стоимости позиции.
	ErrItemAmountInvalid = errors.New("item amount must be non-negative")
	// Ошибка неизвестного типа позиции.
	ErrItemTypeUnknown = errors.New("unknown order item type")
	// ErrOrderNotFound возвращается, если заказ не найден в хранилище; терминальная ошибка, retry не нужен.
	ErrOrderNotFound = errors.New("order not found")
	// ErrItemNotFound возвращается, если позиция заказа не найдена.
	ErrItemNotFound = errors.New("order item not found")
	// ErrCustomerNotFound возвращается, если профиль клиента не найден.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrContactNotFound возвращается, если у клиента ещё нет контакта регистратора.
	ErrContactNotFound = errors.New("registrar contact not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrInvalidTransition возвращается при недопустимом переходе статуса заказа.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrInvalidSignature — подпись webhook не совпала; запрос отклоняется до любых мутаций.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrDuplicateWebhook — событие с таким idempotency key уже сохранено (unique constraint).
	ErrDuplicateWebhook = errors.New("duplicate webhook event")
	// ErrWebhookNotFound возвращается, если webhook-событие не найдено.
	ErrWebhookNotFound = errors.New("webhook event not found")
	// ErrRetryExhausted — позиция исчерпала лимит повторов и требует ручного вмешательства.
	ErrRetryExhausted = errors.New("item retry limit exhausted")
	// ErrUnknownEventType — шлюз прислал событие неизвестного типа.
	ErrUnknownEventType = errors.New("unknown webhook event type")
	// ErrUnknownGateway — источник webhook не сконфигурирован.
	ErrUnknownGateway = errors.New("unknown payment gateway")
	// ErrItemConfigInvalid — конфигурация позиции не декодируется в типизированный вариант.
	ErrItemConfigInvalid = errors.New("invalid item configuration")
	// Ошибка отсутствующего идентификатора заказа в платёжной записи.
	ErrOrderIDRequired = errors.New("order_id is required")
	// Ошибка отсутствующего кода платёжного шлюза.
	ErrPaymentGatewayRequired = errors.New("payment gateway is required")
	// Ошибка отрицательной суммы платежа.
	ErrPaymentAmountNegative = errors.New("payment amount must be non-negative")
	// Ошибка некорректной суммы возврата.
	ErrRefundAmountInvalid = errors.New("refund amount must be within captured amount")
	// ErrOutboxPublish — сообщение outbox не найдено или не обновилось при публикации.
	ErrOutboxPublish = errors.New("outbox message publish failed")
)

// ProvisioningError — типизированная ошибка provisioning одной позиции.
// Message — курируемый текст для клиента; Cause хранит сырую ошибку адаптера для логов.
type ProvisioningError struct {
	ItemType ItemType
	Message  string
	Cause    error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning %s failed: %s", e.ItemType, e.Message)
}

func (e *ProvisioningError) Unwrap() error {
	return e.Cause
}

// NewProvisioningError оборачивает ошибку адаптера в типизированный отказ позиции.
func NewProvisioningError(itemType ItemType, message string, cause error) *ProvisioningError {
	return &ProvisioningError{ItemType: itemType, Message: message, Cause: cause}
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsProvisioningFailure проверяет, относится ли ошибка к отказу provisioning позиции.
func IsProvisioningFailure(err error) bool {
	var pe *ProvisioningError
	return errors.As(err, &pe)
}
