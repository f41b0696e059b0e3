package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/resellerd/internal/domain"
)

func sampleEvent(id, key string) domain.WebhookEvent {
	return domain.WebhookEvent{
		ID:             id,
		IdempotencyKey: key,
		Source:         "stripe",
		EventType:      domain.WebhookEventPaymentSuccess,
		Payload:        []byte(`{"event_id":"` + key + `"}`),
		Status:         domain.WebhookStatusPending,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestWebhookEventRepository_CreateAndFind(t *testing.T) {
	repo := NewWebhookEventRepository()

	if err := repo.Create(context.Background(), sampleEvent("evt-1", "key-1")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	event, err := repo.FindByKey(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("FindByKey failed: %v", err)
	}
	if event.ID != "evt-1" || event.Status != domain.WebhookStatusPending {
		t.Fatalf("unexpected event: %+v", event)
	}

	if _, err := repo.FindByKey(context.Background(), "missing"); !errors.Is(err, domain.ErrWebhookNotFound) {
		t.Fatalf("expected ErrWebhookNotFound, got %v", err)
	}
}

func TestWebhookEventRepository_DuplicateKey(t *testing.T) {
	repo := NewWebhookEventRepository()

	if err := repo.Create(context.Background(), sampleEvent("evt-1", "key-1")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := repo.Create(context.Background(), sampleEvent("evt-2", "key-1")); !errors.Is(err, domain.ErrDuplicateWebhook) {
		t.Fatalf("expected ErrDuplicateWebhook, got %v", err)
	}
}

func TestWebhookEventRepository_StatusTransitions(t *testing.T) {
	repo := NewWebhookEventRepository()
	if err := repo.Create(context.Background(), sampleEvent("evt-1", "key-1")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := repo.MarkProcessed(context.Background(), "evt-1"); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
	event, _ := repo.FindByKey(context.Background(), "key-1")
	if event.Status != domain.WebhookStatusProcessed || event.ProcessedAt == nil {
		t.Fatalf("unexpected event after MarkProcessed: %+v", event)
	}

	if err := repo.MarkFailed(context.Background(), "evt-1"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	event, _ = repo.FindByKey(context.Background(), "key-1")
	if event.Status != domain.WebhookStatusFailed {
		t.Fatalf("unexpected event after MarkFailed: %+v", event)
	}

	if err := repo.MarkProcessed(context.Background(), "ghost"); !errors.Is(err, domain.ErrWebhookNotFound) {
		t.Fatalf("expected ErrWebhookNotFound for unknown id, got %v", err)
	}
}

func TestWebhookEventRepository_DeleteProcessedBefore(t *testing.T) {
	repo := NewWebhookEventRepository()

	for _, id := range []string{"evt-old", "evt-fresh", "evt-pending"} {
		if err := repo.Create(context.Background(), sampleEvent(id, "key-"+id)); err != nil {
			t.Fatalf("Create %s failed: %v", id, err)
		}
	}
	if err := repo.MarkProcessed(context.Background(), "evt-old"); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
	if err := repo.MarkProcessed(context.Background(), "evt-fresh"); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}

	// Оба processed-события старше cutoff; pending не удаляется никогда.
	deleted, err := repo.DeleteProcessedBefore(time.Now().UTC().Add(time.Hour), 100)
	if err != nil {
		t.Fatalf("DeleteProcessedBefore failed: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected both processed events deleted, got %d", deleted)
	}

	if _, err := repo.FindByKey(context.Background(), "key-evt-old"); !errors.Is(err, domain.ErrWebhookNotFound) {
		t.Fatalf("old processed event must be purged, got %v", err)
	}
	if _, err := repo.FindByKey(context.Background(), "key-evt-pending"); err != nil {
		t.Fatalf("pending event must survive retention: %v", err)
	}
}

func TestWebhookEventRepository_DeleteProcessedBefore_RespectsLimit(t *testing.T) {
	repo := NewWebhookEventRepository()

	for _, id := range []string{"evt-1", "evt-2", "evt-3"} {
		if err := repo.Create(context.Background(), sampleEvent(id, "key-"+id)); err != nil {
			t.Fatalf("Create %s failed: %v", id, err)
		}
		if err := repo.MarkProcessed(context.Background(), id); err != nil {
			t.Fatalf("MarkProcessed %s failed: %v", id, err)
		}
	}

	deleted, err := repo.DeleteProcessedBefore(time.Now().UTC().Add(time.Hour), 2)
	if err != nil {
		t.Fatalf("DeleteProcessedBefore failed: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected limit to apply, deleted %d", deleted)
	}

	remaining, err := repo.DeleteProcessedBefore(time.Now().UTC().Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("second pass failed: %v", err)
	}
	if remaining != 1 {
		t.Fatalf("expected one event left for second pass, deleted %d", remaining)
	}
}

func TestWebhookEventRepository_DeleteProcessedBefore_SkipsFresh(t *testing.T) {
	repo := NewWebhookEventRepository()
	if err := repo.Create(context.Background(), sampleEvent("evt-1", "key-1")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := repo.MarkProcessed(context.Background(), "evt-1"); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}

	deleted, err := repo.DeleteProcessedBefore(time.Now().UTC().Add(-time.Hour), 100)
	if err != nil {
		t.Fatalf("DeleteProcessedBefore failed: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("events processed after cutoff must survive, deleted %d", deleted)
	}
}
