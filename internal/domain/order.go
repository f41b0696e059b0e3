package domain

import "time"

// OrderStatus описывает жизненный цикл заказа в платформе реселлера.
type OrderStatus string

const (
	// OrderStatusDraft — заказ собран в корзине, но ещё не отправлен на оплату.
	OrderStatusDraft OrderStatus = "draft"
	// OrderStatusPendingPayment — заказ отправлен, ожидаем подтверждение от платёжного шлюза.
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	// OrderStatusProcessing — оплата подтверждена, идёт provisioning позиций.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusCompleted — все позиции успешно provisioned; терминальный статус (кроме refund).
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusPartialFailure — часть позиций provisioned, часть упала; кандидат на retry.
	OrderStatusPartialFailure OrderStatus = "partial_failure"
	// OrderStatusFailed — ни одна позиция не provisioned либо оплата не прошла.
	OrderStatusFailed OrderStatus = "failed"
	// OrderStatusRefunded — средства возвращены; терминальный статус.
	OrderStatusRefunded OrderStatus = "refunded"
)

// PaymentState описывает платёжное состояние заказа (не путать с Payment-строками).
type PaymentState string

const (
	PaymentStatePending   PaymentState = "pending"
	PaymentStateCompleted PaymentState = "completed"
	PaymentStateFailed    PaymentState = "failed"
	PaymentStateRefunded  PaymentState = "refunded"
)

// CanTransitionTo проверяет допустимость перехода статуса заказа.
// Переходы монотонны, единственное исключение — refund из любого статуса после draft.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if next == OrderStatusRefunded {
		return s != OrderStatusDraft && s != OrderStatusRefunded
	}
	switch s {
	case OrderStatusDraft:
		return next == OrderStatusPendingPayment
	case OrderStatusPendingPayment:
		return next == OrderStatusProcessing || next == OrderStatusFailed
	case OrderStatusProcessing:
		return next == OrderStatusCompleted || next == OrderStatusPartialFailure || next == OrderStatusFailed
	case OrderStatusPartialFailure, OrderStatusFailed:
		// Retry может допровести заказ до completed, downgrade запрещён.
		return next == OrderStatusCompleted
	default:
		return false
	}
}

// Terminal сообщает, что статус финальный и заказ больше не меняется (кроме refund для completed).
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusRefunded
}

// ItemStatus описывает статус исполнения одной позиции заказа.
type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusFailed     ItemStatus = "failed"
)

// ItemType — тег типа услуги в позиции заказа.
type ItemType string

const (
	ItemTypeDomainRegistration ItemType = "domain_registration"
	ItemTypeDomainTransfer     ItemType = "domain_transfer"
	ItemTypeDomainRenewal      ItemType = "domain_renewal"
	ItemTypeHostingPlan        ItemType = "hosting_plan"
	ItemTypeEmailService       ItemType = "email_service"
	ItemTypeSSLCertificate     ItemType = "ssl_certificate"
	ItemTypeSitelock           ItemType = "sitelock"
	ItemTypePrivacyProtection  ItemType = "privacy_protection"
	ItemTypeAICredits          ItemType = "ai_credits"
)

// MaxItemRetries — предел повторных попыток provisioning одной позиции.
const MaxItemRetries = 3

// OrderItem представляет одну позицию заказа, привязанную ровно к одному типу услуги.
type OrderItem struct {
	ID      string
	OrderID string
	Type    ItemType
	// Config — типоспецифичная конфигурация позиции в JSON; декодируется в tagged union
	// через DecodeItemConfig.
	Config []byte
	// AmountMinor — стоимость позиции в минимальных денежных единицах.
	AmountMinor int64
	Status      ItemStatus
	RetryCount  int
	// ExternalRef — идентификатор, присвоенный внешней provisioning-системой при успехе.
	ExternalRef string
	// ErrorMessage — курируемое сообщение об ошибке; сырые ошибки адаптеров наружу не выходят.
	ErrorMessage string
	// ResourceID — ссылка на локальную запись provisioned-ресурса.
	ResourceID  string
	FulfilledAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Retryable сообщает, подлежит ли позиция автоматическому повтору.
func (i *OrderItem) Retryable() bool {
	return i.Status == ItemStatusFailed && i.RetryCount < MaxItemRetries
}

// Order агрегирует заказ клиента: суммы, платёжное состояние и позиции.
type Order struct {
	ID          string
	CustomerID  string
	OrderNumber string
	Status      OrderStatus
	Currency    string

	// Денежные поля в минимальных единицах. Инвариант: Total = Subtotal - Discount + Tax.
	SubtotalMinor int64
	DiscountMinor int64
	TaxMinor      int64
	TotalMinor    int64

	PaymentState PaymentState
	// PaymentRef — идентификатор транзакции платёжного шлюза.
	PaymentRef string

	Items []OrderItem

	Version     int64
	SubmittedAt *time.Time
	PaidAt      *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.SubtotalMinor < 0 || o.TaxMinor < 0 || o.DiscountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	// Сверяем формулу итога и сумму позиций.
	if o.TotalMinor != o.SubtotalMinor-o.DiscountMinor+o.TaxMinor {
		errs = append(errs, ErrTotalMismatch)
	}
	var calc int64
	for _, item := range o.Items {
		if item.AmountMinor < 0 {
			errs = append(errs, ErrItemAmountInvalid)
		}
		if !knownItemType(item.Type) {
			errs = append(errs, ErrItemTypeUnknown)
		}
		calc += item.AmountMinor
	}
	if len(o.Items) > 0 && calc != o.SubtotalMinor {
		errs = append(errs, ErrSubtotalMismatch)
	}

	return errs
}

// FailedItems возвращает позиции в статусе failed.
func (o *Order) FailedItems() []OrderItem {
	failed := make([]OrderItem, 0)
	for _, item := range o.Items {
		if item.Status == ItemStatusFailed {
			failed = append(failed, item)
		}
	}
	return failed
}

// AllItemsCompleted сообщает, что каждая позиция заказа достигла completed.
func (o *Order) AllItemsCompleted() bool {
	for _, item := range o.Items {
		if item.Status != ItemStatusCompleted {
			return false
		}
	}
	return len(o.Items) > 0
}

func knownItemType(t ItemType) bool {
	switch t {
	case ItemTypeDomainRegistration, ItemTypeDomainTransfer, ItemTypeDomainRenewal,
		ItemTypeHostingPlan, ItemTypeEmailService, ItemTypeSSLCertificate,
		ItemTypeSitelock, ItemTypePrivacyProtection, ItemTypeAICredits:
		return true
	default:
		return false
	}
}
