package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/resellerd/internal/domain"
	"github.com/vladislavdragonenkov/resellerd/internal/service/orchestrator"
)

var (
	webhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resellerd_webhook_deliveries_total",
		Help: "Total number of inbound webhook deliveries grouped by result.",
	}, []string{"result"})
	webhookProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "resellerd_webhook_processing_duration_seconds",
		Help:    "Duration of webhook intake processing in seconds.",
		Buckets: prometheus.DefBuckets,
	})
)

const (
	resultProcessed        = "processed"
	resultDuplicate        = "duplicate"
	resultInvalidSignature = "invalid_signature"
	resultUnknownGateway   = "unknown_gateway"
	resultMalformed        = "malformed"
	resultUnknownEvent     = "unknown_event"
	resultHandlerError     = "handler_error"
)

// envelope — общий конверт платёжного события; конкретные шлюзы маппятся
// в этот формат на уровне своих инеграционных прокладок.
type envelope struct {
	EventID       string `json:"event_id"`
	EventType     string `json:"event_type"`
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id"`
	AmountMinor   int64  `json:"amount_minor"`
	Currency      string `json:"currency"`
	Reason        string `json:"reason,omitempty"`
}

// Intake принимает асинхронные платёжные уведомления шлюзов.
// Порядок строгий: подпись проверяется до любых мутаций, дубликаты отбрасываются
// по idempotency key, событие помечается processed только после успешного
// завершения обработчика — редоставка at-least-once безопасна.
type Intake struct {
	verifiers map[string]domain.WebhookVerifier
	events    domain.WebhookEventRepository
	orch      orchestrator.Orchestrator
	logger    *log.Entry
}

// NewIntake создаёт intake с per-gateway верификаторами подписи.
func NewIntake(
	verifiers map[string]domain.WebhookVerifier,
	events domain.WebhookEventRepository,
	orch orchestrator.Orchestrator,
	logger *log.Entry,
) *Intake {
	if logger == nil {
		logger = log.New().WithField("component", "webhook-intake")
	}
	return &Intake{
		verifiers: verifiers,
		events:    events,
		orch:      orch,
		logger:    logger,
	}
}

// Receive обрабатывает одну доставку webhook.
func (i *Intake) Receive(ctx context.Context, source string, payload []byte, signature string) error {
	start := time.Now()
	defer func() {
		webhookProcessingDuration.Observe(time.Since(start).Seconds())
	}()

	logger := i.logger.WithField("source", source)

	verifier, ok := i.verifiers[source]
	if !ok {
		webhookDeliveries.WithLabelValues(resultUnknownGateway).Inc()
		return fmt.Errorf("%w: %s", domain.ErrUnknownGateway, source)
	}
	if !verifier.VerifySignature(payload, signature) {
		webhookDeliveries.WithLabelValues(resultInvalidSignature).Inc()
		logger.Warn("webhook rejected: signature mismatch")
		return domain.ErrInvalidSignature
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		webhookDeliveries.WithLabelValues(resultMalformed).Inc()
		return fmt.Errorf("decode webhook payload: %w", err)
	}

	key := env.EventID
	if key == "" {
		sum := sha256.Sum256(payload)
		key = hex.EncodeToString(sum[:])
	}
	logger = logger.WithFields(log.Fields{"idempotency_key": key, "event_type": env.EventType})

	event, err := i.loadOrCreateEvent(ctx, source, key, env.EventType, payload)
	if err != nil {
		return err
	}
	if event.Processed() {
		// At-least-once доставка: событие уже обработано, молча подтверждаем.
		webhookDeliveries.WithLabelValues(resultDuplicate).Inc()
		logger.Info("duplicate webhook delivery, skipping")
		return nil
	}

	notice := domain.PaymentNotice{
		OrderID:       env.OrderID,
		TransactionID: env.TransactionID,
		Gateway:       source,
		AmountMinor:   env.AmountMinor,
		Currency:      env.Currency,
		Reason:        env.Reason,
	}

	var handleErr error
	switch domain.WebhookEventType(env.EventType) {
	case domain.WebhookEventPaymentSuccess:
		handleErr = i.orch.HandlePaymentSuccess(ctx, env.OrderID, notice)
	case domain.WebhookEventPaymentFailed:
		handleErr = i.orch.HandlePaymentFailure(ctx, env.OrderID, notice)
	case domain.WebhookEventPaymentRefunded:
		handleErr = i.orch.HandlePaymentRefund(ctx, env.OrderID, notice)
	default:
		// Неизвестный тип ретраить бессмысленно: помечаем failed и подтверждаем доставку.
		webhookDeliveries.WithLabelValues(resultUnknownEvent).Inc()
		logger.Warn("unknown webhook event type")
		if markErr := i.events.MarkFailed(ctx, event.ID); markErr != nil {
			return fmt.Errorf("mark webhook failed: %w", markErr)
		}
		return nil
	}

	if handleErr != nil {
		// Событие остаётся pending: редоставка шлюза повторит обработку безопасно.
		webhookDeliveries.WithLabelValues(resultHandlerError).Inc()
		logger.WithError(handleErr).Error("webhook handler failed, event left pending")
		return handleErr
	}

	if err := i.events.MarkProcessed(ctx, event.ID); err != nil {
		return fmt.Errorf("mark webhook processed: %w", err)
	}
	webhookDeliveries.WithLabelValues(resultProcessed).Inc()
	logger.Info("webhook processed")
	return nil
}

// loadOrCreateEvent возвращает существующее событие по ключу или сохраняет новое.
// Unique constraint на idempotency key в хранилище — финальная защита от гонки
// двух конкурентных доставок.
func (i *Intake) loadOrCreateEvent(ctx context.Context, source, key, eventType string, payload []byte) (domain.WebhookEvent, error) {
	event, err := i.events.FindByKey(ctx, key)
	if err == nil {
		return event, nil
	}
	if !errors.Is(err, domain.ErrWebhookNotFound) {
		return domain.WebhookEvent{}, fmt.Errorf("lookup webhook event: %w", err)
	}

	event = domain.WebhookEvent{
		ID:             uuid.NewString(),
		IdempotencyKey: key,
		Source:         source,
		EventType:      domain.WebhookEventType(eventType),
		Payload:        payload,
		Status:         domain.WebhookStatusPending,
		CreatedAt:      time.Now().UTC(),
	}
	if err := i.events.Create(ctx, event); err != nil {
		if errors.Is(err, domain.ErrDuplicateWebhook) {
			// Конкурентная доставка успела первой — перечитываем её запись.
			return i.events.FindByKey(ctx, key)
		}
		return domain.WebhookEvent{}, fmt.Errorf("persist webhook event: %w", err)
	}
	return event, nil
}
