package app

import (
	"time"

	"github.com/vladislavdragonenkov/resellerd/internal/domain"
)

// newTestOrder создаёт тестовый заказ для использования в тестах.
func newTestOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:            "test-order-1",
		CustomerID:    "test-customer-1",
		OrderNumber:   "R-2026-000001",
		Status:        domain.OrderStatusPendingPayment,
		Currency:      "USD",
		SubtotalMinor: 1000,
		TotalMinor:    1000,
		PaymentState:  domain.PaymentStatePending,
		Items: []domain.OrderItem{
			{
				ID:          "item-1",
				OrderID:     "test-order-1",
				Type:        domain.ItemTypeDomainRegistration,
				Config:      []byte(`{"domain_name":"example.dev","period_years":1}`),
				AmountMinor: 1000,
				Status:      domain.ItemStatusPending,
				CreatedAt:   now,
				UpdatedAt:   now,
			},
		},
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
