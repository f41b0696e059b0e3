package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/resellerd/internal/domain"
)

const opTimeout = 5 * time.Second

// Ledger — PostgreSQL-реализация domain.Ledger.
// WithOrder удерживает SELECT ... FOR UPDATE на строке заказа на всё время
// транзакции, поэтому конкурентные webhook по одному заказу сериализуются базой.
type Ledger struct {
	db *sql.DB
}

// NewLedger создаёт PostgreSQL-реализацию Ledger поверх открытого Store.
func NewLedger(store *Store) *Ledger {
	return &Ledger{db: store.DB()}
}

const orderColumns = `
	id, customer_id, order_number, status, currency,
	subtotal_minor, discount_minor, tax_minor, total_minor,
	payment_state, payment_ref, version,
	submitted_at, paid_at, completed_at, created_at, updated_at`

// CreateOrder сохраняет заказ вместе с позициями в одной транзакции.
func (l *Ledger) CreateOrder(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`,
		order.ID, order.CustomerID, order.OrderNumber, string(order.Status), order.Currency,
		order.SubtotalMinor, order.DiscountMinor, order.TaxMinor, order.TotalMinor,
		string(order.PaymentState), order.PaymentRef, order.Version,
		order.SubmittedAt, order.PaidAt, order.CompletedAt, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		config := item.Config
		if len(config) == 0 {
			config = []byte("{}")
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, item_type, config, amount_minor, status,
				retry_count, external_ref, error_message, resource_id,
				fulfilled_at, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`,
			item.ID, order.ID, string(item.Type), config, item.AmountMinor, string(item.Status),
			item.RetryCount, item.ExternalRef, item.ErrorMessage, item.ResourceID,
			item.FulfilledAt, item.CreatedAt, item.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create order: %w", err)
	}

	return nil
}

// GetOrder возвращает заказ с позициями или ErrOrderNotFound.
func (l *Ledger) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := l.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id)

	order, err := scanOrder(row)
	if err != nil {
		return domain.Order{}, err
	}

	items, err := loadItems(ctx, l.db, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

// ListOrdersByCustomer возвращает заказы клиента, ограничивая выборку limit (если >0).
func (l *Ledger) ListOrdersByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)

	if limit > 0 {
		rows, err = l.db.QueryContext(ctx, query+" LIMIT $2", customerID, limit)
	} else {
		rows, err = l.db.QueryContext(ctx, query, customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	for idx := range orders {
		items, err := loadItems(ctx, l.db, orders[idx].ID)
		if err != nil {
			return nil, err
		}
		orders[idx].Items = items
	}

	return orders, nil
}

// WithOrder выполняет fn в транзакции, удерживая эксклюзивную блокировку строки заказа.
// Ошибка fn откатывает транзакцию целиком.
func (l *Ledger) WithOrder(ctx context.Context, orderID string, fn func(tx domain.OrderTx) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin order tx: %w", err)
	}

	order, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	otx := &orderTx{ctx: ctx, tx: tx, order: &order}
	if err := fn(otx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order tx: %w", err)
	}
	return nil
}

// ListPayments возвращает платёжные записи заказа.
func (l *Ledger) ListPayments(ctx context.Context, orderID string) ([]domain.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, order_id, gateway, external_transaction_id, status,
		       amount_minor, currency, refunded_minor, failure_reason, refund_reason,
		       created_at, updated_at
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0)
	for rows.Next() {
		var (
			p      domain.Payment
			status string
		)
		if err := rows.Scan(
			&p.ID, &p.OrderID, &p.Gateway, &p.ExternalTransactionID, &status,
			&p.AmountMinor, &p.Currency, &p.RefundedMinor, &p.FailureReason, &p.RefundReason,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan payment row: %w", err)
		}
		p.Status = domain.PaymentStatus(status)
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment rows: %w", err)
	}

	return payments, nil
}

// ListAudit возвращает записи аудита заказа в порядке их добавления.
func (l *Ledger) ListAudit(ctx context.Context, orderID string) ([]domain.AuditEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, actor, action, order_id, item_id, before_status, after_status, metadata, created_at
		FROM audit_log
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.AuditEntry, 0)
	for rows.Next() {
		var (
			entry  domain.AuditEntry
			action string
		)
		if err := rows.Scan(
			&entry.ID, &entry.Actor, &action, &entry.OrderID, &entry.ItemID,
			&entry.BeforeStatus, &entry.AfterStatus, &entry.Metadata, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		entry.Action = domain.AuditAction(action)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}

	return entries, nil
}

// ListResources возвращает provisioned-ресурсы заказа.
func (l *Ledger) ListResources(ctx context.Context, orderID string) ([]domain.ProvisionedResource, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, customer_id, order_id, item_id, kind, external_ref, attributes, created_at
		FROM provisioned_resources
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list provisioned resources: %w", err)
	}
	defer rows.Close()

	resources := make([]domain.ProvisionedResource, 0)
	for rows.Next() {
		var (
			res  domain.ProvisionedResource
			kind string
		)
		if err := rows.Scan(
			&res.ID, &res.CustomerID, &res.OrderID, &res.ItemID, &kind,
			&res.ExternalRef, &res.Attributes, &res.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan resource row: %w", err)
		}
		res.Kind = domain.ResourceKind(kind)
		resources = append(resources, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resource rows: %w", err)
	}

	return resources, nil
}

// orderTx — транзакционный scope одного заказа поверх *sql.Tx.
// Мутации пишутся в базу сразу и зеркалируются в загруженный snapshot,
// чтобы агрегатные проверки по tx.Order() видели актуальное состояние.
type orderTx struct {
	ctx   context.Context
	tx    *sql.Tx
	order *domain.Order
}

func (t *orderTx) Order() *domain.Order {
	return t.order
}

func (t *orderTx) UpdateOrder(order domain.Order) error {
	_, err := t.tx.ExecContext(t.ctx, `
		UPDATE orders
		SET status = $1,
		    payment_state = $2,
		    payment_ref = $3,
		    version = version + 1,
		    submitted_at = $4,
		    paid_at = $5,
		    completed_at = $6,
		    updated_at = $7
		WHERE id = $8
	`,
		string(order.Status), string(order.PaymentState), order.PaymentRef,
		order.SubmittedAt, order.PaidAt, order.CompletedAt, order.UpdatedAt,
		t.order.ID,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	items := t.order.Items
	*t.order = order
	t.order.Items = items
	t.order.Version++
	return nil
}

func (t *orderTx) UpdateItem(item domain.OrderItem) error {
	res, err := t.tx.ExecContext(t.ctx, `
		UPDATE order_items
		SET status = $1,
		    retry_count = $2,
		    external_ref = $3,
		    error_message = $4,
		    resource_id = $5,
		    fulfilled_at = $6,
		    updated_at = $7
		WHERE id = $8
		  AND order_id = $9
	`,
		string(item.Status), item.RetryCount, item.ExternalRef, item.ErrorMessage,
		item.ResourceID, item.FulfilledAt, item.UpdatedAt,
		item.ID, t.order.ID,
	)
	if err != nil {
		return fmt.Errorf("update order item: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for item update: %w", err)
	}
	if affected == 0 {
		return domain.ErrItemNotFound
	}

	for idx := range t.order.Items {
		if t.order.Items[idx].ID == item.ID {
			t.order.Items[idx] = item
			break
		}
	}
	return nil
}

func (t *orderTx) InsertPayment(p domain.Payment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO payments (
			id, order_id, gateway, external_transaction_id, status,
			amount_minor, currency, refunded_minor, failure_reason, refund_reason,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		p.ID, p.OrderID, p.Gateway, p.ExternalTransactionID, string(p.Status),
		p.AmountMinor, p.Currency, p.RefundedMinor, p.FailureReason, p.RefundReason,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (t *orderTx) MarkLatestPaymentRefunded(amountMinor int64, reason string) error {
	_, err := t.tx.ExecContext(t.ctx, `
		UPDATE payments
		SET status = 'refunded',
		    refunded_minor = $2,
		    refund_reason = $3,
		    updated_at = $4
		WHERE id = (
			SELECT id FROM payments
			WHERE order_id = $1
			  AND status = 'captured'
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		)
	`, t.order.ID, amountMinor, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark payment refunded: %w", err)
	}
	return nil
}

func (t *orderTx) InsertResource(res domain.ProvisionedResource) error {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	attrs := res.Attributes
	if len(attrs) == 0 {
		attrs = []byte("{}")
	}

	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO provisioned_resources (
			id, customer_id, order_id, item_id, kind, external_ref, attributes, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		res.ID, res.CustomerID, res.OrderID, res.ItemID, string(res.Kind),
		res.ExternalRef, attrs, res.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert provisioned resource: %w", err)
	}
	return nil
}

func (t *orderTx) AppendAudit(entry domain.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	metadata := entry.Metadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}
	if !json.Valid(metadata) {
		metadata = []byte("{}")
	}

	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO audit_log (
			id, actor, action, order_id, item_id, before_status, after_status, metadata, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		entry.ID, entry.Actor, string(entry.Action), entry.OrderID, entry.ItemID,
		entry.BeforeStatus, entry.AfterStatus, metadata, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (t *orderTx) EnqueueOutbox(msg domain.OutboxMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO outbox_messages (
			id, aggregate_type, aggregate_id, event_type, payload,
			status, attempt_count, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,'pending',0,$6,$7)
	`,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, now, now,
	)
	if err != nil {
		return fmt.Errorf("enqueue outbox message in tx: %w", err)
	}
	return nil
}

func (t *orderTx) AddCredits(customerID string, amountMinor int64) error {
	res, err := t.tx.ExecContext(t.ctx, `
		UPDATE customers
		SET credit_balance_minor = credit_balance_minor + $2,
		    updated_at = $3
		WHERE id = $1
	`, customerID, amountMinor, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("add customer credits: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for credits update: %w", err)
	}
	if affected == 0 {
		return domain.ErrCustomerNotFound
	}
	return nil
}

func lockOrder(ctx context.Context, tx *sql.Tx, orderID string) (domain.Order, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, orderID)

	order, err := scanOrder(row)
	if err != nil {
		return domain.Order{}, err
	}

	items, err := loadItems(ctx, tx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order        domain.Order
		status       string
		paymentState string
		submittedAt  sql.NullTime
		paidAt       sql.NullTime
		completedAt  sql.NullTime
	)

	err := row.Scan(
		&order.ID, &order.CustomerID, &order.OrderNumber, &status, &order.Currency,
		&order.SubtotalMinor, &order.DiscountMinor, &order.TaxMinor, &order.TotalMinor,
		&paymentState, &order.PaymentRef, &order.Version,
		&submittedAt, &paidAt, &completedAt, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("scan order row: %w", err)
	}

	order.Status = domain.OrderStatus(status)
	order.PaymentState = domain.PaymentState(paymentState)
	order.SubmittedAt = nullTimePtr(submittedAt)
	order.PaidAt = nullTimePtr(paidAt)
	order.CompletedAt = nullTimePtr(completedAt)

	return order, nil
}

func loadItems(ctx context.Context, q querier, orderID string) ([]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, item_type, config, amount_minor, status,
		       retry_count, external_ref, error_message, resource_id,
		       fulfilled_at, created_at, updated_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var (
			item        domain.OrderItem
			itemType    string
			status      string
			fulfilledAt sql.NullTime
		)
		if err := rows.Scan(
			&item.ID, &item.OrderID, &itemType, &item.Config, &item.AmountMinor, &status,
			&item.RetryCount, &item.ExternalRef, &item.ErrorMessage, &item.ResourceID,
			&fulfilledAt, &item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.Type = domain.ItemType(itemType)
		item.Status = domain.ItemStatus(status)
		item.FulfilledAt = nullTimePtr(fulfilledAt)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.Ledger = (*Ledger)(nil)
var _ domain.OrderTx = (*orderTx)(nil)
var _ domain.PaymentRepository = (*Ledger)(nil)
var _ domain.AuditRepository = (*Ledger)(nil)
var _ domain.ResourceRepository = (*Ledger)(nil)
