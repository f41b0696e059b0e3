package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/resellerd/internal/adapter/certauth"
	"github.com/vladislavdragonenkov/resellerd/internal/adapter/hosting"
	"github.com/vladislavdragonenkov/resellerd/internal/adapter/mailhost"
	"github.com/vladislavdragonenkov/resellerd/internal/adapter/registrar"
	"github.com/vladislavdragonenkov/resellerd/internal/adapter/security"
	"github.com/vladislavdragonenkov/resellerd/internal/domain"
	"github.com/vladislavdragonenkov/resellerd/internal/storage/memory"
)

// testEnv собирает in-memory окружение оркестратора с mock-адаптерами.
type testEnv struct {
	ledger    *memory.Ledger
	customers *memory.CustomerRepository
	contacts  *memory.ContactRepository
	outbox    interface {
		AllPending() []domain.OutboxMessage
	}

	registrar *registrar.MockService
	hosting   *hosting.MockService
	certauth  *certauth.MockService
	security  *security.MockService
	mailhost  *mailhost.MockService

	orch *orchestrator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	outboxRepo := memory.NewOutboxRepository()
	customers := memory.NewCustomerRepository()
	env := &testEnv{
		ledger:    memory.NewLedger(outboxRepo, customers),
		customers: customers,
		contacts:  memory.NewContactRepository(),
		outbox:    outboxRepo,
		registrar: registrar.NewMockService(),
		hosting:   hosting.NewMockService(),
		certauth:  certauth.NewMockService(),
		security:  security.NewMockService(),
		mailhost:  mailhost.NewMockService(),
	}

	orch := NewWithoutMetrics(env.ledger, env.customers, env.contacts, Adapters{
		Registrar:    env.registrar,
		Hosting:      env.hosting,
		Certificates: env.certauth,
		Security:     env.security,
		Mailboxes:    env.mailhost,
	}, log.WithField("test", t.Name()))
	env.orch = orch.(*orchestrator)

	if err := customers.Create(context.Background(), domain.Customer{
		ID:        "cust-1",
		Email:     "owner@example.com",
		FirstName: "Dana",
		LastName:  "Reeve",
		Country:   "NL",
	}); err != nil {
		t.Fatalf("seed customer: %v", err)
	}

	return env
}

func (e *testEnv) seedOrder(t *testing.T, items ...domain.OrderItem) domain.Order {
	t.Helper()

	var subtotal int64
	for idx := range items {
		items[idx].OrderID = "order-1"
		if items[idx].Status == "" {
			items[idx].Status = domain.ItemStatusPending
		}
		subtotal += items[idx].AmountMinor
	}

	order := domain.Order{
		ID:            "order-1",
		CustomerID:    "cust-1",
		OrderNumber:   "R-2026-000042",
		Status:        domain.OrderStatusPendingPayment,
		Currency:      "USD",
		SubtotalMinor: subtotal,
		TotalMinor:    subtotal,
		PaymentState:  domain.PaymentStatePending,
		Items:         items,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	if err := e.ledger.CreateOrder(context.Background(), order); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

func (e *testEnv) mustGetOrder(t *testing.T, id string) domain.Order {
	t.Helper()
	order, err := e.ledger.GetOrder(context.Background(), id)
	if err != nil {
		t.Fatalf("get order %s: %v", id, err)
	}
	return order
}

func (e *testEnv) outboxEventTypes() []string {
	pending := e.outbox.AllPending()
	types := make([]string, 0, len(pending))
	for _, msg := range pending {
		types = append(types, msg.EventType)
	}
	return types
}

func testNotice() domain.PaymentNotice {
	return domain.PaymentNotice{
		OrderID:       "order-1",
		TransactionID: "txn-100",
		Gateway:       "stripe",
		AmountMinor:   3000,
		Currency:      "USD",
	}
}

func itemDomainRegistration(id string) domain.OrderItem {
	return domain.OrderItem{
		ID:          id,
		Type:        domain.ItemTypeDomainRegistration,
		Config:      []byte(`{"domain_name":"example.dev","years":1,"privacy":true}`),
		AmountMinor: 1500,
	}
}

func itemHosting(id string) domain.OrderItem {
	return domain.OrderItem{
		ID:          id,
		Type:        domain.ItemTypeHostingPlan,
		Config:      []byte(`{"site_name":"example","domain":"example.dev","plan_ref":"wp-starter"}`),
		AmountMinor: 900,
	}
}

func itemCredits(id string) domain.OrderItem {
	return domain.OrderItem{
		ID:          id,
		Type:        domain.ItemTypeAICredits,
		Config:      []byte(`{"credits_minor":5000}`),
		AmountMinor: 600,
	}
}

func TestHandlePaymentSuccess_AllItemsCompleted(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, itemDomainRegistration("item-1"), itemCredits("item-2"))

	if err := env.orch.HandlePaymentSuccess(context.Background(), "order-1", testNotice()); err != nil {
		t.Fatalf("HandlePaymentSuccess failed: %v", err)
	}

	order := env.mustGetOrder(t, "order-1")
	if order.Status != domain.OrderStatusCompleted {
		t.Fatalf("unexpected order status: %s", order.Status)
	}
	if order.PaymentState != domain.PaymentStateCompleted {
		t.Fatalf("unexpected payment state: %s", order.PaymentState)
	}
	if order.PaymentRef != "txn-100" {
		t.Fatalf("unexpected payment ref: %s", order.PaymentRef)
	}
	if order.PaidAt == nil || order.CompletedAt == nil {
		t.Fatal("expected paid_at and completed_at to be set")
	}
	for _, item := range order.Items {
		if item.Status != domain.ItemStatusCompleted {
			t.Fatalf("item %s not completed: %s", item.ID, item.Status)
		}
		if item.ExternalRef == "" {
			t.Fatalf("item %s has no external ref", item.ID)
		}
		if item.ResourceID == "" {
			t.Fatalf("item %s has no resource", item.ID)
		}
	}

	payments, err := env.ledger.ListPayments(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(payments) != 1 || payments[0].Status != domain.PaymentStatusCaptured {
		t.Fatalf("expected one captured payment, got %+v", payments)
	}

	resources, err := env.ledger.ListResources(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("list resources: %v", err)
	}
	if len(resources) != 2 {
		t.Fatalf("expected 2 resources, got %d", len(resources))
	}

	customer, err := env.customers.Get(context.Background(), "cust-1")
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if customer.CreditBalanceMinor != 5000 {
		t.Fatalf("unexpected credit balance: %d", customer.CreditBalanceMinor)
	}

	types := env.outboxEventTypes()
	if len(types) != 1 || types[0] != EventOrderCompleted {
		t.Fatalf("unexpected outbox events: %v", types)
	}
}

func TestHandlePaymentSuccess_SynthesizesContact(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, itemDomainRegistration("item-1"))

	if _, err := env.contacts.FindByCustomer(context.Background(), "cust-1"); !errors.Is(err, domain.ErrContactNotFound) {
		t.Fatalf("expected no contact before provisioning, got %v", err)
	}

	if err := env.orch.HandlePaymentSuccess(context.Background(), "order-1", testNotice()); err != nil {
		t.Fatalf("HandlePaymentSuccess failed: %v", err)
	}

	contact, err := env.contacts.FindByCustomer(context.Background(), "cust-1")
	if err != nil {
		t.Fatalf("expected synthesized contact: %v", err)
	}
	if contact.Email != "owner@example.com" || contact.Country != "NL" {
		t.Fatalf("unexpected contact: %+v", contact)
	}
	if contact.Phone == "" {
		t.Fatal("expected placeholder phone for missing profile field")
	}
}

func TestHandlePaymentSuccess_PartialFailure(t *testing.T) {
	env := newTestEnv(t)
	env.hosting.Err = errors.New("capacity")
	env.seedOrder(t, itemDomainRegistration("item-1"), itemHosting("item-2"))

	if err := env.orch.HandlePaymentSuccess(context.Background(), "order-1", testNotice()); err != nil {
		t.Fatalf("HandlePaymentSuccess failed: %v", err)
	}

	order := env.mustGetOrder(t, "order-1")
	if order.Status != domain.OrderStatusPartialFailure {
		t.Fatalf("unexpected order status: %s", order.Status)
	}

	if order.Items[0].Status != domain.ItemStatusCompleted || order.Items[0].ExternalRef != "d-1" {
		t.Fatalf("unexpected registrar item: %+v", order.Items[0])
	}
	failed := order.FailedItems()
	if len(failed) != 1 || failed[0].ID != "item-2" {
		t.Fatalf("unexpected failed items: %+v", failed)
	}
	if failed[0].RetryCount != 1 {
		t.Fatalf("unexpected retry count: %d", failed[0].RetryCount)
	}
	if failed[0].ErrorMessage != "capacity" {
		t.Fatalf("unexpected curated message: %q", failed[0].ErrorMessage)
	}

	types := env.outboxEventTypes()
	if len(types) != 1 || types[0] != EventOrderPartiallyFailed {
		t.Fatalf("unexpected outbox events: %v", types)
	}
}

func TestHandlePaymentSuccess_AllItemsFailed(t *testing.T) {
	env := newTestEnv(t)
	env.registrar.RegisterErr = errors.New("registry rejected the request")
	env.hosting.Err = errors.New("panel api unavailable")
	env.seedOrder(t, itemDomainRegistration("item-1"), itemHosting("item-2"))

	if err := env.orch.HandlePaymentSuccess(context.Background(), "order-1", testNotice()); err != nil {
		t.Fatalf("HandlePaymentSuccess failed: %v", err)
	}

	order := env.mustGetOrder(t, "order-1")
	if order.Status != domain.OrderStatusFailed {
		t.Fatalf("unexpected order status: %s", order.Status)
	}
	if len(order.FailedItems()) != 2 {
		t.Fatalf("expected both items failed, got %+v", order.Items)
	}

	types := env.outboxEventTypes()
	if len(types) != 1 || types[0] != EventOrderFailed {
		t.Fatalf("unexpected outbox events: %v", types)
	}
}

func TestHandlePaymentSuccess_InvalidItemConfig(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, domain.OrderItem{
		ID:          "item-1",
		Type:        domain.ItemTypeDomainRegistration,
		Config:      []byte(`{"years":1}`),
		AmountMinor: 1500,
	})

	if err := env.orch.HandlePaymentSuccess(context.Background(), "order-1", testNotice()); err != nil {
		t.Fatalf("HandlePaymentSuccess failed: %v", err)
	}

	order := env.mustGetOrder(t, "order-1")
	if order.Status != domain.OrderStatusFailed {
		t.Fatalf("unexpected order status: %s", order.Status)
	}
	if order.Items[0].ErrorMessage != "invalid item configuration" {
		t.Fatalf("unexpected curated message: %q", order.Items[0].ErrorMessage)
	}
	if env.registrar.RegisterCalls != 0 {
		t.Fatalf("adapter must not be called for invalid config, calls=%d", env.registrar.RegisterCalls)
	}
}

func TestHandlePaymentSuccess_IdempotentOnTerminalOrder(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, itemDomainRegistration("item-1"))

	if err := env.orch.HandlePaymentSuccess(context.Background(), "order-1", testNotice()); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if err := env.orch.HandlePaymentSuccess(context.Background(), "order-1", testNotice()); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}

	if env.registrar.RegisterCalls != 1 {
		t.Fatalf("redelivery must not re-provision, calls=%d", env.registrar.RegisterCalls)
	}
	payments, _ := env.ledger.ListPayments(context.Background(), "order-1")
	if len(payments) != 1 {
		t.Fatalf("redelivery must not duplicate payments, got %d", len(payments))
	}
	types := env.outboxEventTypes()
	if len(types) != 1 {
		t.Fatalf("redelivery must not duplicate confirmations: %v", types)
	}
}

func TestHandlePaymentSuccess_RedeliveryAfterPartialFailure(t *testing.T) {
	env := newTestEnv(t)
	env.hosting.Err = errors.New("capacity")
	env.seedOrder(t, itemDomainRegistration("item-1"), itemHosting("item-2"))

	if err := env.orch.HandlePaymentSuccess(context.Background(), "order-1", testNotice()); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}

	// Редоставка под новым transaction id проходит дедупликацию intake,
	// но заказ уже учтён: статус и платёжные записи не меняются.
	replay := testNotice()
	replay.TransactionID = "txn-101"
	if err := env.orch.HandlePaymentSuccess(context.Background(), "order-1", replay); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}

	order := env.mustGetOrder(t, "order-1")
	if order.Status != domain.OrderStatusPartialFailure {
		t.Fatalf("order with failed items must stay partial_failure, got %s", order.Status)
	}
	if order.PaymentRef != "txn-100" {
		t.Fatalf("redelivery must not overwrite payment ref: %s", order.PaymentRef)
	}
	if len(order.FailedItems()) != 1 {
		t.Fatalf("unexpected failed items: %+v", order.Items)
	}

	payments, _ := env.ledger.ListPayments(context.Background(), "order-1")
	if len(payments) != 1 {
		t.Fatalf("redelivery must not insert a second captured payment, got %d", len(payments))
	}
	if env.registrar.RegisterCalls != 1 || env.hosting.Calls != 1 {
		t.Fatalf("redelivery must not re-provision, registrar=%d hosting=%d", env.registrar.RegisterCalls, env.hosting.Calls)
	}
	types := env.outboxEventTypes()
	if len(types) != 1 || types[0] != EventOrderPartiallyFailed {
		t.Fatalf("redelivery must not duplicate confirmations: %v", types)
	}
}

func TestHandlePaymentSuccess_RedeliveryAfterFailure(t *testing.T) {
	env := newTestEnv(t)
	env.registrar.RegisterErr = errors.New("registry rejected the request")
	env.seedOrder(t, itemDomainRegistration("item-1"))

	if err := env.orch.HandlePaymentSuccess(context.Background(), "order-1", testNotice()); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}

	replay := testNotice()
	replay.TransactionID = "txn-101"
	if err := env.orch.HandlePaymentSuccess(context.Background(), "order-1", replay); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}

	order := env.mustGetOrder(t, "order-1")
	if order.Status != domain.OrderStatusFailed {
		t.Fatalf("failed order must not be promoted by redelivery, got %s", order.Status)
	}
	payments, _ := env.ledger.ListPayments(context.Background(), "order-1")
	if len(payments) != 1 {
		t.Fatalf("redelivery must not duplicate payments, got %d", len(payments))
	}
	if env.registrar.RegisterCalls != 1 {
		t.Fatalf("redelivery must not re-provision, calls=%d", env.registrar.RegisterCalls)
	}
}

func TestHandlePaymentSuccess_AdapterTimeout(t *testing.T) {
	env := newTestEnv(t)
	env.orch.adapterTimeout = 30 * time.Millisecond
	env.registrar.Delay = 500 * time.Millisecond
	env.seedOrder(t, itemDomainRegistration("item-1"))

	if err := env.orch.HandlePaymentSuccess(context.Background(), "order-1", testNotice()); err != nil {
		t.Fatalf("HandlePaymentSuccess failed: %v", err)
	}

	order := env.mustGetOrder(t, "order-1")
	if order.Status != domain.OrderStatusFailed {
		t.Fatalf("unexpected order status: %s", order.Status)
	}
	if order.Items[0].ErrorMessage != "provisioning timed out" {
		t.Fatalf("unexpected curated message: %q", order.Items[0].ErrorMessage)
	}
}

func TestHandlePaymentSuccess_OrderNotFound(t *testing.T) {
	env := newTestEnv(t)

	err := env.orch.HandlePaymentSuccess(context.Background(), "missing", testNotice())
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestHandlePaymentFailure_MarksOrderFailed(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, itemDomainRegistration("item-1"))

	notice := testNotice()
	notice.Reason = "card_declined"
	if err := env.orch.HandlePaymentFailure(context.Background(), "order-1", notice); err != nil {
		t.Fatalf("HandlePaymentFailure failed: %v", err)
	}

	order := env.mustGetOrder(t, "order-1")
	if order.Status != domain.OrderStatusFailed {
		t.Fatalf("unexpected order status: %s", order.Status)
	}
	if order.PaymentState != domain.PaymentStateFailed {
		t.Fatalf("unexpected payment state: %s", order.PaymentState)
	}
	if env.registrar.RegisterCalls != 0 {
		t.Fatal("payment failure must not trigger provisioning")
	}

	payments, _ := env.ledger.ListPayments(context.Background(), "order-1")
	if len(payments) != 1 || payments[0].Status != domain.PaymentStatusFailed {
		t.Fatalf("expected one failed payment, got %+v", payments)
	}
	if payments[0].FailureReason != "card_declined" {
		t.Fatalf("unexpected failure reason: %q", payments[0].FailureReason)
	}

	audits, _ := env.ledger.ListAudit(context.Background(), "order-1")
	if len(audits) != 1 || audits[0].Action != domain.AuditActionPaymentFailed {
		t.Fatalf("expected payment failure audit entry, got %+v", audits)
	}
}

func TestHandlePaymentFailure_IgnoredForCompletedOrder(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, itemDomainRegistration("item-1"))

	if err := env.orch.HandlePaymentSuccess(context.Background(), "order-1", testNotice()); err != nil {
		t.Fatalf("HandlePaymentSuccess failed: %v", err)
	}
	if err := env.orch.HandlePaymentFailure(context.Background(), "order-1", testNotice()); err != nil {
		t.Fatalf("late failure notice must be a no-op: %v", err)
	}

	order := env.mustGetOrder(t, "order-1")
	if order.Status != domain.OrderStatusCompleted {
		t.Fatalf("completed order must not be downgraded: %s", order.Status)
	}
}

func TestHandlePaymentRefund_FullRefund(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, itemDomainRegistration("item-1"), itemHosting("item-2"))

	if err := env.orch.HandlePaymentSuccess(context.Background(), "order-1", testNotice()); err != nil {
		t.Fatalf("HandlePaymentSuccess failed: %v", err)
	}

	notice := testNotice()
	notice.AmountMinor = 2400
	notice.Reason = "customer request"
	if err := env.orch.HandlePaymentRefund(context.Background(), "order-1", notice); err != nil {
		t.Fatalf("HandlePaymentRefund failed: %v", err)
	}

	order := env.mustGetOrder(t, "order-1")
	if order.Status != domain.OrderStatusRefunded {
		t.Fatalf("unexpected order status: %s", order.Status)
	}
	if order.PaymentState != domain.PaymentStateRefunded {
		t.Fatalf("unexpected payment state: %s", order.PaymentState)
	}

	payments, _ := env.ledger.ListPayments(context.Background(), "order-1")
	if len(payments) != 1 || payments[0].Status != domain.PaymentStatusRefunded {
		t.Fatalf("expected refunded payment, got %+v", payments)
	}
	if payments[0].RefundedMinor != 2400 {
		t.Fatalf("unexpected refunded amount: %d", payments[0].RefundedMinor)
	}
	if payments[0].RefundReason != "customer request" {
		t.Fatalf("unexpected refund reason: %q", payments[0].RefundReason)
	}

	types := env.outboxEventTypes()
	if len(types) != 2 || types[1] != EventOrderRefunded {
		t.Fatalf("unexpected outbox events: %v", types)
	}
}

func TestHandlePaymentRefund_ClampsAmount(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, itemDomainRegistration("item-1"))

	if err := env.orch.HandlePaymentSuccess(context.Background(), "order-1", testNotice()); err != nil {
		t.Fatalf("HandlePaymentSuccess failed: %v", err)
	}

	// Сумма за пределами total или нулевая клампится до полного total заказа.
	notice := testNotice()
	notice.AmountMinor = 999999
	if err := env.orch.HandlePaymentRefund(context.Background(), "order-1", notice); err != nil {
		t.Fatalf("HandlePaymentRefund failed: %v", err)
	}

	payments, _ := env.ledger.ListPayments(context.Background(), "order-1")
	if len(payments) != 1 || payments[0].RefundedMinor != 1500 {
		t.Fatalf("expected refund clamped to order total, got %+v", payments)
	}
}

func TestHandlePaymentRefund_ReplayIsNoop(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, itemDomainRegistration("item-1"))

	if err := env.orch.HandlePaymentSuccess(context.Background(), "order-1", testNotice()); err != nil {
		t.Fatalf("HandlePaymentSuccess failed: %v", err)
	}
	if err := env.orch.HandlePaymentRefund(context.Background(), "order-1", testNotice()); err != nil {
		t.Fatalf("first refund failed: %v", err)
	}
	if err := env.orch.HandlePaymentRefund(context.Background(), "order-1", testNotice()); err != nil {
		t.Fatalf("refund replay failed: %v", err)
	}

	types := env.outboxEventTypes()
	if len(types) != 2 {
		t.Fatalf("refund replay must not duplicate confirmations: %v", types)
	}
}

func TestHandlePaymentRefund_DraftIgnored(t *testing.T) {
	env := newTestEnv(t)
	order := domain.Order{
		ID:           "order-1",
		CustomerID:   "cust-1",
		Status:       domain.OrderStatusDraft,
		Currency:     "USD",
		PaymentState: domain.PaymentStatePending,
	}
	if err := env.ledger.CreateOrder(context.Background(), order); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	if err := env.orch.HandlePaymentRefund(context.Background(), "order-1", testNotice()); err != nil {
		t.Fatalf("refund of draft must be a no-op: %v", err)
	}

	got := env.mustGetOrder(t, "order-1")
	if got.Status != domain.OrderStatusDraft {
		t.Fatalf("draft order must not change status: %s", got.Status)
	}
}

func TestRetryFailedItems_PromotesOrder(t *testing.T) {
	env := newTestEnv(t)
	env.hosting.Err = errors.New("panel api unavailable")
	env.seedOrder(t, itemDomainRegistration("item-1"), itemHosting("item-2"))

	if err := env.orch.HandlePaymentSuccess(context.Background(), "order-1", testNotice()); err != nil {
		t.Fatalf("HandlePaymentSuccess failed: %v", err)
	}

	// Хостинг "починился" — повтор должен допровести заказ.
	env.hosting.Err = nil
	if err := env.orch.RetryFailedItems(context.Background(), "order-1"); err != nil {
		t.Fatalf("RetryFailedItems failed: %v", err)
	}

	order := env.mustGetOrder(t, "order-1")
	if order.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected promotion to completed, got %s", order.Status)
	}
	if order.CompletedAt == nil {
		t.Fatal("expected completed_at to be set after promotion")
	}

	var retried, promoted bool
	audits, _ := env.ledger.ListAudit(context.Background(), "order-1")
	for _, entry := range audits {
		switch entry.Action {
		case domain.AuditActionItemRetried:
			retried = true
		case domain.AuditActionOrderPromoted:
			promoted = true
		}
	}
	if !retried || !promoted {
		t.Fatalf("expected retry and promotion audit entries, got %+v", audits)
	}

	types := env.outboxEventTypes()
	if len(types) != 2 || types[1] != EventOrderCompleted {
		t.Fatalf("unexpected outbox events: %v", types)
	}
}

func TestRetryFailedItems_KeepsFailingItem(t *testing.T) {
	env := newTestEnv(t)
	env.hosting.Err = errors.New("panel api unavailable")
	env.seedOrder(t, itemDomainRegistration("item-1"), itemHosting("item-2"))

	if err := env.orch.HandlePaymentSuccess(context.Background(), "order-1", testNotice()); err != nil {
		t.Fatalf("HandlePaymentSuccess failed: %v", err)
	}
	if err := env.orch.RetryFailedItems(context.Background(), "order-1"); err != nil {
		t.Fatalf("RetryFailedItems failed: %v", err)
	}

	order := env.mustGetOrder(t, "order-1")
	if order.Status != domain.OrderStatusPartialFailure {
		t.Fatalf("status must not change while item keeps failing: %s", order.Status)
	}
	failed := order.FailedItems()
	if len(failed) != 1 || failed[0].RetryCount != 2 {
		t.Fatalf("unexpected failed items after retry: %+v", failed)
	}
}

func TestRetryFailedItems_SkipsExhaustedItems(t *testing.T) {
	env := newTestEnv(t)
	env.hosting.Err = errors.New("panel api unavailable")
	env.seedOrder(t, itemDomainRegistration("item-1"), itemHosting("item-2"))

	if err := env.orch.HandlePaymentSuccess(context.Background(), "order-1", testNotice()); err != nil {
		t.Fatalf("HandlePaymentSuccess failed: %v", err)
	}
	// Исчерпываем лимит: после MaxItemRetries попыток позиция выпадает из кандидатов.
	for attempt := 1; attempt < domain.MaxItemRetries; attempt++ {
		if err := env.orch.RetryFailedItems(context.Background(), "order-1"); err != nil {
			t.Fatalf("retry attempt %d failed: %v", attempt, err)
		}
	}

	callsBefore := env.hosting.Calls
	if err := env.orch.RetryFailedItems(context.Background(), "order-1"); err != nil {
		t.Fatalf("retry of exhausted order failed: %v", err)
	}
	if env.hosting.Calls != callsBefore {
		t.Fatalf("exhausted item must not hit the adapter again, calls=%d", env.hosting.Calls)
	}

	order := env.mustGetOrder(t, "order-1")
	if order.FailedItems()[0].RetryCount != domain.MaxItemRetries {
		t.Fatalf("unexpected retry count: %d", order.FailedItems()[0].RetryCount)
	}
}

func TestRetryFailedItems_TerminalOrderIsNoop(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, itemDomainRegistration("item-1"))

	if err := env.orch.HandlePaymentSuccess(context.Background(), "order-1", testNotice()); err != nil {
		t.Fatalf("HandlePaymentSuccess failed: %v", err)
	}

	callsBefore := env.registrar.RegisterCalls
	if err := env.orch.RetryFailedItems(context.Background(), "order-1"); err != nil {
		t.Fatalf("retry of completed order failed: %v", err)
	}
	if env.registrar.RegisterCalls != callsBefore {
		t.Fatal("completed order must not be re-provisioned")
	}
}
