package domain

import (
	"errors"
	"testing"
	"time"
)

func TestOrderStatus_CanTransitionTo(t *testing.T) {
	cases := []struct {
		name    string
		from    OrderStatus
		to      OrderStatus
		allowed bool
	}{
		{"draft to pending_payment", OrderStatusDraft, OrderStatusPendingPayment, true},
		{"draft to processing", OrderStatusDraft, OrderStatusProcessing, false},
		{"draft to refunded", OrderStatusDraft, OrderStatusRefunded, false},
		{"pending_payment to processing", OrderStatusPendingPayment, OrderStatusProcessing, true},
		{"pending_payment to failed", OrderStatusPendingPayment, OrderStatusFailed, true},
		{"pending_payment to completed", OrderStatusPendingPayment, OrderStatusCompleted, false},
		{"processing to completed", OrderStatusProcessing, OrderStatusCompleted, true},
		{"processing to partial_failure", OrderStatusProcessing, OrderStatusPartialFailure, true},
		{"processing to failed", OrderStatusProcessing, OrderStatusFailed, true},
		{"processing to pending_payment", OrderStatusProcessing, OrderStatusPendingPayment, false},
		{"partial_failure to completed", OrderStatusPartialFailure, OrderStatusCompleted, true},
		{"partial_failure to failed", OrderStatusPartialFailure, OrderStatusFailed, false},
		{"failed to completed", OrderStatusFailed, OrderStatusCompleted, true},
		{"failed to processing", OrderStatusFailed, OrderStatusProcessing, false},
		{"completed to partial_failure", OrderStatusCompleted, OrderStatusPartialFailure, false},
		{"completed to refunded", OrderStatusCompleted, OrderStatusRefunded, true},
		{"pending_payment to refunded", OrderStatusPendingPayment, OrderStatusRefunded, true},
		{"failed to refunded", OrderStatusFailed, OrderStatusRefunded, true},
		{"refunded to refunded", OrderStatusRefunded, OrderStatusRefunded, false},
		{"refunded to completed", OrderStatusRefunded, OrderStatusCompleted, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
				t.Fatalf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.allowed)
			}
		})
	}
}

func TestOrderStatus_Terminal(t *testing.T) {
	terminal := map[OrderStatus]bool{
		OrderStatusDraft:          false,
		OrderStatusPendingPayment: false,
		OrderStatusProcessing:     false,
		OrderStatusCompleted:      true,
		OrderStatusPartialFailure: false,
		OrderStatusFailed:         false,
		OrderStatusRefunded:       true,
	}
	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Fatalf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestOrderItem_Retryable(t *testing.T) {
	item := OrderItem{Status: ItemStatusFailed, RetryCount: 0}
	if !item.Retryable() {
		t.Fatal("failed item under the limit must be retryable")
	}

	item.RetryCount = MaxItemRetries
	if item.Retryable() {
		t.Fatal("item at the retry limit must not be retryable")
	}

	item = OrderItem{Status: ItemStatusCompleted}
	if item.Retryable() {
		t.Fatal("completed item must not be retryable")
	}
}

func validOrder() Order {
	return Order{
		ID:            "order-1",
		CustomerID:    "cust-1",
		OrderNumber:   "R-2026-000001",
		Status:        OrderStatusDraft,
		Currency:      "USD",
		SubtotalMinor: 2400,
		DiscountMinor: 400,
		TaxMinor:      100,
		TotalMinor:    2100,
		Items: []OrderItem{
			{ID: "item-1", Type: ItemTypeDomainRegistration, AmountMinor: 1500},
			{ID: "item-2", Type: ItemTypeHostingPlan, AmountMinor: 900},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestOrder_ValidateInvariants_Valid(t *testing.T) {
	order := validOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no violations, got %v", errs)
	}
}

func TestOrder_ValidateInvariants_Violations(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Order)
		want   error
	}{
		{"missing customer", func(o *Order) { o.CustomerID = "" }, ErrCustomerRequired},
		{"missing currency", func(o *Order) { o.Currency = "" }, ErrCurrencyRequired},
		{"no items", func(o *Order) { o.Items = nil }, ErrItemsRequired},
		{"negative discount", func(o *Order) { o.DiscountMinor = -1 }, ErrAmountNegative},
		{"total formula broken", func(o *Order) { o.TotalMinor = 9999 }, ErrTotalMismatch},
		{"subtotal does not match items", func(o *Order) { o.Items[0].AmountMinor = 1 }, ErrSubtotalMismatch},
		{"negative item amount", func(o *Order) { o.Items[0].AmountMinor = -5 }, ErrItemAmountInvalid},
		{"unknown item type", func(o *Order) { o.Items[0].Type = "vps_plan" }, ErrItemTypeUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := validOrder()
			tc.mutate(&order)

			errs := order.ValidateInvariants()
			found := false
			for _, err := range errs {
				if errors.Is(err, tc.want) {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %v among violations, got %v", tc.want, errs)
			}
		})
	}
}

func TestOrder_FailedItems(t *testing.T) {
	order := validOrder()
	order.Items[0].Status = ItemStatusCompleted
	order.Items[1].Status = ItemStatusFailed

	failed := order.FailedItems()
	if len(failed) != 1 || failed[0].ID != "item-2" {
		t.Fatalf("unexpected failed items: %+v", failed)
	}
}

func TestOrder_AllItemsCompleted(t *testing.T) {
	order := validOrder()
	if order.AllItemsCompleted() {
		t.Fatal("pending items must not count as completed")
	}

	for idx := range order.Items {
		order.Items[idx].Status = ItemStatusCompleted
	}
	if !order.AllItemsCompleted() {
		t.Fatal("expected all items completed")
	}

	order.Items = nil
	if order.AllItemsCompleted() {
		t.Fatal("order without items must not count as completed")
	}
}
