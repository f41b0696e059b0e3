package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/resellerd/internal/domain"
)

// Ledger — in-memory реализация domain.Ledger для локальной разработки и тестов.
// Per-order mutex воспроизводит семантику блокировки строки заказа:
// конкурентные WithOrder по одному заказу сериализуются.
type Ledger struct {
	mu        sync.RWMutex
	locks     map[string]*sync.Mutex
	orders    map[string]domain.Order
	payments  map[string][]domain.Payment
	resources map[string][]domain.ProvisionedResource
	audits    map[string][]domain.AuditEntry

	outbox    domain.OutboxRepository
	customers *CustomerRepository
}

// NewLedger создаёт in-memory ledger поверх общих outbox и customer-репозиториев.
func NewLedger(outbox domain.OutboxRepository, customers *CustomerRepository) *Ledger {
	return &Ledger{
		locks:     make(map[string]*sync.Mutex),
		orders:    make(map[string]domain.Order),
		payments:  make(map[string][]domain.Payment),
		resources: make(map[string][]domain.ProvisionedResource),
		audits:    make(map[string][]domain.AuditEntry),
		outbox:    outbox,
		customers: customers,
	}
}

// CreateOrder сохраняет новый заказ, если ID ещё не занят.
func (l *Ledger) CreateOrder(ctx context.Context, order domain.Order) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.orders[order.ID]; exists {
		return domain.ErrOrderVersionConflict
	}
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	l.orders[order.ID] = cloneOrder(order)
	return nil
}

// GetOrder возвращает заказ с позициями или ErrOrderNotFound.
func (l *Ledger) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	order, ok := l.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// ListOrdersByCustomer возвращает заказы клиента, ограничивая выборку limit (если >0).
func (l *Ledger) ListOrdersByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, order := range l.orders {
		if order.CustomerID != customerID {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// WithOrder выполняет fn под per-order блокировкой; ошибка fn отбрасывает все
// накопленные транзакцией записи.
func (l *Ledger) WithOrder(ctx context.Context, orderID string, fn func(tx domain.OrderTx) error) error {
	lock := l.orderLock(orderID)
	lock.Lock()
	defer lock.Unlock()

	l.mu.RLock()
	order, ok := l.orders[orderID]
	l.mu.RUnlock()
	if !ok {
		return domain.ErrOrderNotFound
	}

	snapshot := cloneOrder(order)
	tx := &orderTx{ledger: l, order: &snapshot}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (l *Ledger) orderLock(orderID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[orderID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[orderID] = lock
	}
	return lock
}

// ListPayments возвращает платёжные записи заказа.
func (l *Ledger) ListPayments(ctx context.Context, orderID string) ([]domain.Payment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.Payment(nil), l.payments[orderID]...), nil
}

// ListAudit возвращает записи аудита заказа.
func (l *Ledger) ListAudit(ctx context.Context, orderID string) ([]domain.AuditEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.AuditEntry(nil), l.audits[orderID]...), nil
}

// ListResources возвращает provisioned-ресурсы заказа.
func (l *Ledger) ListResources(ctx context.Context, orderID string) ([]domain.ProvisionedResource, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.ProvisionedResource(nil), l.resources[orderID]...), nil
}

// orderTx буферизует мутации до успешного завершения fn.
type orderTx struct {
	ledger *Ledger
	order  *domain.Order

	payments   []domain.Payment
	resources  []domain.ProvisionedResource
	audits     []domain.AuditEntry
	outboxMsgs []domain.OutboxMessage
	credits    []creditTopUp
	refund     *refundMark
}

type creditTopUp struct {
	customerID  string
	amountMinor int64
}

type refundMark struct {
	amountMinor int64
	reason      string
}

func (t *orderTx) Order() *domain.Order {
	return t.order
}

func (t *orderTx) UpdateOrder(order domain.Order) error {
	// Позиции живут в t.order.Items; здесь фиксируются только поля заказа.
	items := t.order.Items
	*t.order = order
	t.order.Items = items
	return nil
}

func (t *orderTx) UpdateItem(item domain.OrderItem) error {
	for idx := range t.order.Items {
		if t.order.Items[idx].ID == item.ID {
			t.order.Items[idx] = item
			return nil
		}
	}
	return domain.ErrItemNotFound
}

func (t *orderTx) InsertPayment(p domain.Payment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	t.payments = append(t.payments, p)
	return nil
}

func (t *orderTx) MarkLatestPaymentRefunded(amountMinor int64, reason string) error {
	t.refund = &refundMark{amountMinor: amountMinor, reason: reason}
	return nil
}

func (t *orderTx) InsertResource(res domain.ProvisionedResource) error {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	t.resources = append(t.resources, res)
	return nil
}

func (t *orderTx) AppendAudit(entry domain.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	t.audits = append(t.audits, entry)
	return nil
}

func (t *orderTx) EnqueueOutbox(msg domain.OutboxMessage) error {
	t.outboxMsgs = append(t.outboxMsgs, msg)
	return nil
}

func (t *orderTx) AddCredits(customerID string, amountMinor int64) error {
	t.credits = append(t.credits, creditTopUp{customerID: customerID, amountMinor: amountMinor})
	return nil
}

// commit применяет накопленные мутации атомарно относительно других читателей.
func (t *orderTx) commit() {
	l := t.ledger
	orderID := t.order.ID

	l.mu.Lock()
	t.order.Version++
	l.orders[orderID] = cloneOrder(*t.order)
	l.payments[orderID] = append(l.payments[orderID], t.payments...)
	if t.refund != nil {
		rows := l.payments[orderID]
		for idx := len(rows) - 1; idx >= 0; idx-- {
			if rows[idx].Status == domain.PaymentStatusCaptured {
				rows[idx].Status = domain.PaymentStatusRefunded
				rows[idx].RefundedMinor = t.refund.amountMinor
				rows[idx].RefundReason = t.refund.reason
				rows[idx].UpdatedAt = time.Now().UTC()
				break
			}
		}
	}
	l.resources[orderID] = append(l.resources[orderID], t.resources...)
	l.audits[orderID] = append(l.audits[orderID], t.audits...)
	l.mu.Unlock()

	for _, msg := range t.outboxMsgs {
		_, _ = l.outbox.Enqueue(msg)
	}
	for _, topUp := range t.credits {
		l.customers.AddCredits(topUp.customerID, topUp.amountMinor)
	}
}

func cloneOrder(order domain.Order) domain.Order {
	cp := order
	cp.Items = append([]domain.OrderItem(nil), order.Items...)
	return cp
}

var _ domain.Ledger = (*Ledger)(nil)
var _ domain.OrderTx = (*orderTx)(nil)
var _ domain.PaymentRepository = (*Ledger)(nil)
var _ domain.AuditRepository = (*Ledger)(nil)
var _ domain.ResourceRepository = (*Ledger)(nil)
