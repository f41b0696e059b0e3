package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/resellerd/internal/domain"
)

// WebhookEventRepository — in-memory журнал webhook-событий с уникальностью
// по idempotency key.
type WebhookEventRepository struct {
	mu    sync.RWMutex
	byID  map[string]domain.WebhookEvent
	byKey map[string]string
}

// NewWebhookEventRepository возвращает пустой in-memory журнал webhook.
func NewWebhookEventRepository() *WebhookEventRepository {
	return &WebhookEventRepository{
		byID:  make(map[string]domain.WebhookEvent),
		byKey: make(map[string]string),
	}
}

// Create сохраняет новое событие; ErrDuplicateWebhook при конфликте ключа.
func (r *WebhookEventRepository) Create(ctx context.Context, event domain.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKey[event.IdempotencyKey]; exists {
		return domain.ErrDuplicateWebhook
	}
	r.byID[event.ID] = event
	r.byKey[event.IdempotencyKey] = event.ID
	return nil
}

// FindByKey возвращает событие по idempotency key или ErrWebhookNotFound.
func (r *WebhookEventRepository) FindByKey(ctx context.Context, key string) (domain.WebhookEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byKey[key]
	if !ok {
		return domain.WebhookEvent{}, domain.ErrWebhookNotFound
	}
	return r.byID[id], nil
}

// MarkProcessed переводит событие в processed с меткой времени.
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, id string) error {
	return r.setStatus(id, domain.WebhookStatusProcessed)
}

// MarkFailed помечает событие необрабатываемым.
func (r *WebhookEventRepository) MarkFailed(ctx context.Context, id string) error {
	return r.setStatus(id, domain.WebhookStatusFailed)
}

func (r *WebhookEventRepository) setStatus(id string, status domain.WebhookStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	event, ok := r.byID[id]
	if !ok {
		return domain.ErrWebhookNotFound
	}
	now := time.Now().UTC()
	event.Status = status
	event.ProcessedAt = &now
	r.byID[id] = event
	return nil
}

// DeleteProcessedBefore удаляет до limit завершённых событий, обработанных раньше before.
func (r *WebhookEventRepository) DeleteProcessedBefore(before time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = 500
	}

	deleted := 0
	for id, event := range r.byID {
		if event.Status == domain.WebhookStatusPending {
			continue
		}
		if event.ProcessedAt == nil || !event.ProcessedAt.Before(before) {
			continue
		}
		delete(r.byID, id)
		delete(r.byKey, event.IdempotencyKey)
		deleted++
		if deleted >= limit {
			break
		}
	}
	return deleted, nil
}

var _ domain.WebhookEventRepository = (*WebhookEventRepository)(nil)
var _ domain.WebhookEventPurger = (*WebhookEventRepository)(nil)
