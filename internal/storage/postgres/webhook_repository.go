package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/resellerd/internal/domain"
)

type webhookEventRepository struct {
	db *sql.DB
}

// NewWebhookEventRepository создаёт PostgreSQL-журнал webhook-событий.
// Уникальный индекс по idempotency_key гарантирует дедупликацию даже при
// конкурентной доставке одного события.
func NewWebhookEventRepository(store *Store) domain.WebhookEventRepository {
	return &webhookEventRepository{db: store.DB()}
}

func (r *webhookEventRepository) Create(ctx context.Context, event domain.WebhookEvent) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_events (
			id, idempotency_key, source, event_type, payload, status, processed_at, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		event.ID, event.IdempotencyKey, event.Source, string(event.EventType),
		event.Payload, string(event.Status), event.ProcessedAt, event.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateWebhook
		}
		return fmt.Errorf("insert webhook event: %w", err)
	}

	return nil
}

func (r *webhookEventRepository) FindByKey(ctx context.Context, key string) (domain.WebhookEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		event       domain.WebhookEvent
		eventType   string
		status      string
		processedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, idempotency_key, source, event_type, payload, status, processed_at, created_at
		FROM webhook_events
		WHERE idempotency_key = $1
	`, key).Scan(
		&event.ID, &event.IdempotencyKey, &event.Source, &eventType,
		&event.Payload, &status, &processedAt, &event.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WebhookEvent{}, domain.ErrWebhookNotFound
		}
		return domain.WebhookEvent{}, fmt.Errorf("select webhook event: %w", err)
	}

	event.EventType = domain.WebhookEventType(eventType)
	event.Status = domain.WebhookStatus(status)
	event.ProcessedAt = nullTimePtr(processedAt)

	return event, nil
}

func (r *webhookEventRepository) MarkProcessed(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, domain.WebhookStatusProcessed)
}

func (r *webhookEventRepository) MarkFailed(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, domain.WebhookStatusFailed)
}

func (r *webhookEventRepository) setStatus(ctx context.Context, id string, status domain.WebhookStatus) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE webhook_events
		SET status = $2,
		    processed_at = $3
		WHERE id = $1
	`, id, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update webhook event status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for webhook status: %w", err)
	}
	if affected == 0 {
		return domain.ErrWebhookNotFound
	}

	return nil
}

// DeleteProcessedBefore удаляет до limit завершённых событий, обработанных раньше before.
func (r *webhookEventRepository) DeleteProcessedBefore(before time.Time, limit int) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 500
	}

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM webhook_events
		WHERE id IN (
			SELECT id FROM webhook_events
			WHERE status <> 'pending'
			  AND processed_at < $1
			ORDER BY processed_at ASC
			LIMIT $2
		)
	`, before, limit)
	if err != nil {
		return 0, fmt.Errorf("delete processed webhook events: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected for webhook purge: %w", err)
	}

	return int(affected), nil
}

var _ domain.WebhookEventRepository = (*webhookEventRepository)(nil)
var _ domain.WebhookEventPurger = (*webhookEventRepository)(nil)
