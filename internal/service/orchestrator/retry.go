package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/resellerd/internal/domain"
)

const actorOperator = "operator"

// RetryFailedItems повторяет provisioning упавших позиций заказа.
// Позиции обрабатываются последовательно, не fan-out: восстановление не должно
// усугублять rate limit внешних адаптеров. Отказ одной позиции не прерывает
// повторы остальных. Позиции с исчерпанным лимитом повторов исключаются.
func (o *orchestrator) RetryFailedItems(ctx context.Context, orderID string) error {
	logger := o.logger.WithField("order_id", orderID)
	if o.metrics != nil {
		o.metrics.RecordRetryRun()
	}

	return o.ledger.WithOrder(ctx, orderID, func(tx domain.OrderTx) error {
		order := tx.Order()

		if order.Status.Terminal() {
			logger.WithField("status", order.Status).Info("order finalized, nothing to retry")
			return nil
		}

		candidates := make([]int, 0, len(order.Items))
		exhausted := 0
		for idx := range order.Items {
			item := &order.Items[idx]
			if item.Status != domain.ItemStatusFailed {
				continue
			}
			if item.RetryCount >= domain.MaxItemRetries {
				exhausted++
				continue
			}
			candidates = append(candidates, idx)
		}

		if len(candidates) == 0 {
			logger.WithField("exhausted_items", exhausted).Info("no retryable items")
			return nil
		}

		customer, err := o.customers.Get(ctx, order.CustomerID)
		if err != nil {
			return fmt.Errorf("load customer %s: %w", order.CustomerID, err)
		}

		for _, idx := range candidates {
			item := &order.Items[idx]
			now := time.Now().UTC()
			item.Status = domain.ItemStatusProcessing
			item.UpdatedAt = now
			if err := tx.UpdateItem(*item); err != nil {
				return fmt.Errorf("mark item processing: %w", err)
			}

			metadata, _ := json.Marshal(map[string]any{
				"item_type": string(item.Type),
				"attempt":   item.RetryCount + 1,
			})
			if err := tx.AppendAudit(domain.AuditEntry{
				ID:        uuid.NewString(),
				Actor:     actorOperator,
				Action:    domain.AuditActionItemRetried,
				OrderID:   order.ID,
				ItemID:    item.ID,
				Metadata:  metadata,
				CreatedAt: now,
			}); err != nil {
				return fmt.Errorf("append retry audit: %w", err)
			}

			outcome := o.provisionItem(ctx, *item, customer)
			outcome.index = idx
			// Отказ фиксируется на позиции и не прерывает остальные повторы.
			if err := o.applyOutcome(tx, order, outcome, actorOperator); err != nil {
				return err
			}
		}

		// Промоция заказа: только вверх, downgrade статусов не бывает.
		if order.AllItemsCompleted() && order.Status.CanTransitionTo(domain.OrderStatusCompleted) {
			now := time.Now().UTC()
			before := order.Status
			order.Status = domain.OrderStatusCompleted
			order.CompletedAt = &now
			order.UpdatedAt = now
			if err := tx.UpdateOrder(*order); err != nil {
				return fmt.Errorf("promote order: %w", err)
			}

			if err := tx.AppendAudit(domain.AuditEntry{
				ID:           uuid.NewString(),
				Actor:        actorOperator,
				Action:       domain.AuditActionOrderPromoted,
				OrderID:      order.ID,
				BeforeStatus: string(before),
				AfterStatus:  string(order.Status),
				CreatedAt:    now,
			}); err != nil {
				return fmt.Errorf("append promotion audit: %w", err)
			}
			if err := o.enqueueConfirmation(tx, order, EventOrderCompleted); err != nil {
				return err
			}
			if o.metrics != nil {
				o.metrics.RecordOrderProcessed(string(order.Status))
			}
			logger.Info("order promoted to completed after retry")
		} else {
			order.UpdatedAt = time.Now().UTC()
			if err := tx.UpdateOrder(*order); err != nil {
				return fmt.Errorf("save order after retry: %w", err)
			}
			logger.WithFields(log.Fields{
				"status":       order.Status,
				"still_failed": len(order.FailedItems()),
			}).Info("retry pass finished")
		}
		return nil
	})
}
