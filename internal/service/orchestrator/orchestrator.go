package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/resellerd/internal/domain"
	"github.com/vladislavdragonenkov/resellerd/internal/metrics"
)

// События подтверждения, уходящие клиенту через transactional outbox.
// Публикация всегда асинхронна: зависший канал уведомлений не должен блокировать fulfillment.
const (
	EventOrderCompleted       = "order.completed"
	EventOrderPartiallyFailed = "order.partially_failed"
	EventOrderFailed          = "order.failed"
	EventOrderRefunded        = "order.refunded"
)

const (
	defaultAdapterTimeout = 30 * time.Second
	defaultFanOutLimit    = 8

	actorWebhook = "webhook"
)

// Orchestrator описывает интерфейс обработки платёжных событий заказа.
type Orchestrator interface {
	// HandlePaymentSuccess проводит оплаченный заказ через provisioning всех позиций.
	HandlePaymentSuccess(ctx context.Context, orderID string, notice domain.PaymentNotice) error
	// HandlePaymentFailure фиксирует отклонённый платёж; provisioning не запускается.
	HandlePaymentFailure(ctx context.Context, orderID string, notice domain.PaymentNotice) error
	// HandlePaymentRefund переводит заказ в refunded; deprovisioning не выполняется.
	HandlePaymentRefund(ctx context.Context, orderID string, notice domain.PaymentNotice) error
	// RetryFailedItems последовательно повторяет упавшие позиции заказа.
	RetryFailedItems(ctx context.Context, orderID string) error
}

// Adapters собирает capability-интерфейсы внешних provisioning-систем.
// Инжектируются конструктором, чтобы тесты подменяли любой адаптер фейком
// без изменений в логике оркестратора.
type Adapters struct {
	Registrar    domain.RegistrarService
	Hosting      domain.HostingService
	Certificates domain.CertificateService
	Security     domain.SecurityService
	Mailboxes    domain.MailboxService
}

// Options настраивает лимиты оркестратора.
type Options struct {
	// AdapterTimeout ограничивает каждый вызов внешнего адаптера; по истечении
	// зависший вызов превращается в типизированный отказ позиции.
	AdapterTimeout time.Duration
	// FanOutLimit ограничивает число одновременных provisioning-задач одного заказа.
	FanOutLimit int
}

type orchestrator struct {
	ledger    domain.Ledger
	customers domain.CustomerRepository
	contacts  domain.ContactRepository
	adapters  Adapters
	logger    *log.Entry
	metrics   *metrics.ProvisioningMetrics

	adapterTimeout time.Duration
	fanOutLimit    int
}

// New создаёт рабочий экземпляр оркестратора.
func New(
	ledger domain.Ledger,
	customers domain.CustomerRepository,
	contacts domain.ContactRepository,
	adapters Adapters,
	logger *log.Entry,
) Orchestrator {
	return NewWithOptions(ledger, customers, contacts, adapters, logger, Options{})
}

// NewWithOptions создаёт оркестратор с явными лимитами.
func NewWithOptions(
	ledger domain.Ledger,
	customers domain.CustomerRepository,
	contacts domain.ContactRepository,
	adapters Adapters,
	logger *log.Entry,
	opts Options,
) Orchestrator {
	if logger == nil {
		logger = log.New().WithField("component", "orchestrator")
	}
	if opts.AdapterTimeout <= 0 {
		opts.AdapterTimeout = defaultAdapterTimeout
	}
	if opts.FanOutLimit <= 0 {
		opts.FanOutLimit = defaultFanOutLimit
	}
	return &orchestrator{
		ledger:         ledger,
		customers:      customers,
		contacts:       contacts,
		adapters:       adapters,
		logger:         logger,
		metrics:        metrics.NewProvisioningMetrics(),
		adapterTimeout: opts.AdapterTimeout,
		fanOutLimit:    opts.FanOutLimit,
	}
}

// NewWithoutMetrics создаёт оркестратор без метрик (для тестов).
func NewWithoutMetrics(
	ledger domain.Ledger,
	customers domain.CustomerRepository,
	contacts domain.ContactRepository,
	adapters Adapters,
	logger *log.Entry,
) Orchestrator {
	orch := NewWithOptions(ledger, customers, contacts, adapters, logger, Options{}).(*orchestrator)
	orch.metrics = nil
	return orch
}

// HandlePaymentSuccess — центральная машина состояний.
// Весь заказ обрабатывается в одном транзакционном scope с блокировкой строки заказа:
// конкурентная доставка того же webhook либо увидит терминальный статус (no-op), либо
// дождётся освобождения блокировки. Вызовы адаптеров выполняются вне транзакции,
// их результаты применяются в goroutine транзакции — sql.Tx не безопасен для
// конкурентного использования.
func (o *orchestrator) HandlePaymentSuccess(ctx context.Context, orderID string, notice domain.PaymentNotice) error {
	start := time.Now()
	defer func() {
		if o.metrics != nil {
			o.metrics.RecordOrderDuration(time.Since(start))
		}
	}()

	logger := o.logger.WithField("order_id", orderID)

	return o.ledger.WithOrder(ctx, orderID, func(tx domain.OrderTx) error {
		order := tx.Order()

		// Идемпотентность: повторная доставка для завершённого или возвращённого
		// заказа — no-op, защита от double-provisioning.
		if order.Status.Terminal() {
			logger.WithField("status", order.Status).Info("order already finalized, skipping payment success")
			return nil
		}
		// Заказ, уже прошедший provisioning (partial_failure/failed), не обрабатывается
		// повторно даже под новым event id: деньги уже учтены, упавшие позиции
		// доводятся только через RetryFailedItems.
		if !order.Status.CanTransitionTo(domain.OrderStatusProcessing) {
			logger.WithField("status", order.Status).Info("payment success ignored for current order status")
			return nil
		}

		customer, err := o.customers.Get(ctx, order.CustomerID)
		if err != nil {
			return fmt.Errorf("load customer %s: %w", order.CustomerID, err)
		}

		now := time.Now().UTC()
		order.Status = domain.OrderStatusProcessing
		order.PaymentState = domain.PaymentStateCompleted
		order.PaymentRef = notice.TransactionID
		order.PaidAt = &now
		order.UpdatedAt = now
		if err := tx.UpdateOrder(*order); err != nil {
			return fmt.Errorf("mark order processing: %w", err)
		}

		if err := tx.InsertPayment(domain.Payment{
			ID:                    uuid.NewString(),
			OrderID:               order.ID,
			Gateway:               notice.Gateway,
			ExternalTransactionID: notice.TransactionID,
			Status:                domain.PaymentStatusCaptured,
			AmountMinor:           notice.AmountMinor,
			Currency:              order.Currency,
			CreatedAt:             now,
			UpdatedAt:             now,
		}); err != nil {
			return fmt.Errorf("insert captured payment: %w", err)
		}

		// Помечаем позиции processing до fan-out, чтобы частично обработанный
		// заказ был отличим при восстановлении.
		pending := make([]int, 0, len(order.Items))
		for idx := range order.Items {
			if order.Items[idx].Status != domain.ItemStatusPending {
				continue
			}
			order.Items[idx].Status = domain.ItemStatusProcessing
			order.Items[idx].UpdatedAt = now
			if err := tx.UpdateItem(order.Items[idx]); err != nil {
				return fmt.Errorf("mark item processing: %w", err)
			}
			pending = append(pending, idx)
		}

		outcomes := o.fanOut(ctx, order, pending, customer)

		failures := 0
		for _, outcome := range outcomes {
			if err := o.applyOutcome(tx, order, outcome, actorWebhook); err != nil {
				return err
			}
			if outcome.err != nil {
				failures++
			}
		}

		// Агрегация по итоговому статусу всех позиций заказа: позиция в failed
		// никогда не даёт completed, независимо от того, какие позиции
		// обрабатывались в этом проходе.
		switch {
		case order.AllItemsCompleted():
			order.Status = domain.OrderStatusCompleted
			completedAt := time.Now().UTC()
			order.CompletedAt = &completedAt
			if err := o.enqueueConfirmation(tx, order, EventOrderCompleted); err != nil {
				return err
			}
		case len(order.FailedItems()) == len(order.Items):
			order.Status = domain.OrderStatusFailed
			if err := o.enqueueConfirmation(tx, order, EventOrderFailed); err != nil {
				return err
			}
		default:
			order.Status = domain.OrderStatusPartialFailure
			if err := o.enqueueConfirmation(tx, order, EventOrderPartiallyFailed); err != nil {
				return err
			}
		}
		order.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateOrder(*order); err != nil {
			return fmt.Errorf("finalize order status: %w", err)
		}

		if err := o.auditPaymentSuccess(tx, order, notice, failures); err != nil {
			return err
		}

		if o.metrics != nil {
			o.metrics.RecordOrderProcessed(string(order.Status))
		}
		logger.WithFields(log.Fields{
			"status":   order.Status,
			"items":    len(order.Items),
			"failures": failures,
		}).Info("payment success processed")
		return nil
	})
}

// HandlePaymentFailure фиксирует отклонённый платёж одной транзакцией.
func (o *orchestrator) HandlePaymentFailure(ctx context.Context, orderID string, notice domain.PaymentNotice) error {
	logger := o.logger.WithField("order_id", orderID)

	return o.ledger.WithOrder(ctx, orderID, func(tx domain.OrderTx) error {
		order := tx.Order()

		if !order.Status.CanTransitionTo(domain.OrderStatusFailed) {
			logger.WithField("status", order.Status).Info("payment failure ignored for current order status")
			return nil
		}

		now := time.Now().UTC()
		before := order.Status
		order.Status = domain.OrderStatusFailed
		order.PaymentState = domain.PaymentStateFailed
		order.UpdatedAt = now
		if err := tx.UpdateOrder(*order); err != nil {
			return fmt.Errorf("mark order failed: %w", err)
		}

		if err := tx.InsertPayment(domain.Payment{
			ID:                    uuid.NewString(),
			OrderID:               order.ID,
			Gateway:               notice.Gateway,
			ExternalTransactionID: notice.TransactionID,
			Status:                domain.PaymentStatusFailed,
			AmountMinor:           notice.AmountMinor,
			Currency:              order.Currency,
			FailureReason:         notice.Reason,
			CreatedAt:             now,
			UpdatedAt:             now,
		}); err != nil {
			return fmt.Errorf("insert failed payment: %w", err)
		}

		metadata, _ := json.Marshal(map[string]any{
			"transaction_id": notice.TransactionID,
			"reason":         notice.Reason,
		})
		if err := tx.AppendAudit(domain.AuditEntry{
			ID:           uuid.NewString(),
			Actor:        actorWebhook,
			Action:       domain.AuditActionPaymentFailed,
			OrderID:      order.ID,
			BeforeStatus: string(before),
			AfterStatus:  string(order.Status),
			Metadata:     metadata,
			CreatedAt:    now,
		}); err != nil {
			return fmt.Errorf("append payment failure audit: %w", err)
		}

		if o.metrics != nil {
			o.metrics.RecordOrderProcessed(string(order.Status))
		}
		logger.WithField("reason", notice.Reason).Info("payment failure recorded")
		return nil
	})
}

// HandlePaymentRefund переводит заказ в терминальный refunded.
// Поставленные ресурсы не деактивируются: deprovisioning — отдельная,
// policy-driven операция.
func (o *orchestrator) HandlePaymentRefund(ctx context.Context, orderID string, notice domain.PaymentNotice) error {
	logger := o.logger.WithField("order_id", orderID)

	return o.ledger.WithOrder(ctx, orderID, func(tx domain.OrderTx) error {
		order := tx.Order()

		if order.Status == domain.OrderStatusRefunded {
			logger.Info("order already refunded")
			return nil
		}
		if !order.Status.CanTransitionTo(domain.OrderStatusRefunded) {
			logger.WithField("status", order.Status).Warn("refund ignored for draft order")
			return nil
		}

		amount := notice.AmountMinor
		if amount <= 0 || amount > order.TotalMinor {
			amount = order.TotalMinor
		}

		now := time.Now().UTC()
		before := order.Status
		order.Status = domain.OrderStatusRefunded
		order.PaymentState = domain.PaymentStateRefunded
		order.UpdatedAt = now
		if err := tx.UpdateOrder(*order); err != nil {
			return fmt.Errorf("mark order refunded: %w", err)
		}

		if err := tx.MarkLatestPaymentRefunded(amount, notice.Reason); err != nil {
			return fmt.Errorf("mark payment refunded: %w", err)
		}

		metadata, _ := json.Marshal(map[string]any{
			"transaction_id": notice.TransactionID,
			"amount_minor":   amount,
			"reason":         notice.Reason,
		})
		if err := tx.AppendAudit(domain.AuditEntry{
			ID:           uuid.NewString(),
			Actor:        actorWebhook,
			Action:       domain.AuditActionPaymentRefunded,
			OrderID:      order.ID,
			BeforeStatus: string(before),
			AfterStatus:  string(order.Status),
			Metadata:     metadata,
			CreatedAt:    now,
		}); err != nil {
			return fmt.Errorf("append refund audit: %w", err)
		}

		if err := o.enqueueConfirmation(tx, order, EventOrderRefunded); err != nil {
			return err
		}

		if o.metrics != nil {
			o.metrics.RecordOrderProcessed(string(order.Status))
		}
		logger.WithField("amount_minor", amount).Info("refund recorded")
		return nil
	})
}

// auditPaymentSuccess пишет итоговую запись о платёжном событии.
func (o *orchestrator) auditPaymentSuccess(tx domain.OrderTx, order *domain.Order, notice domain.PaymentNotice, failures int) error {
	metadata, _ := json.Marshal(map[string]any{
		"transaction_id": notice.TransactionID,
		"gateway":        notice.Gateway,
		"amount_minor":   notice.AmountMinor,
		"failed_items":   failures,
	})
	if err := tx.AppendAudit(domain.AuditEntry{
		ID:          uuid.NewString(),
		Actor:       actorWebhook,
		Action:      domain.AuditActionPaymentSuccess,
		OrderID:     order.ID,
		AfterStatus: string(order.Status),
		Metadata:    metadata,
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("append payment success audit: %w", err)
	}
	return nil
}

// enqueueConfirmation ставит событие подтверждения в outbox той же транзакцией.
func (o *orchestrator) enqueueConfirmation(tx domain.OrderTx, order *domain.Order, eventType string) error {
	payload, err := json.Marshal(map[string]any{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"customer_id":  order.CustomerID,
		"status":       string(order.Status),
		"total_minor":  order.TotalMinor,
		"currency":     order.Currency,
		"ts":           time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal confirmation payload: %w", err)
	}
	if err := tx.EnqueueOutbox(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		return fmt.Errorf("enqueue confirmation event: %w", err)
	}
	return nil
}

var _ Orchestrator = (*orchestrator)(nil)
