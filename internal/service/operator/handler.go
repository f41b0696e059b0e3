package operator

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/resellerd/internal/domain"
	"github.com/vladislavdragonenkov/resellerd/internal/service/orchestrator"
)

const defaultListLimit = 50

// Handler — операторский read/retry API поверх Ledger.
// Мутации заказа идут только через оркестратор; прямых записей в хранилище здесь нет.
type Handler struct {
	ledger    domain.Ledger
	payments  domain.PaymentRepository
	audit     domain.AuditRepository
	resources domain.ResourceRepository
	orch      orchestrator.Orchestrator
	logger    *log.Entry
}

// NewHandler создаёт операторский HTTP-handler.
func NewHandler(
	ledger domain.Ledger,
	payments domain.PaymentRepository,
	audit domain.AuditRepository,
	resources domain.ResourceRepository,
	orch orchestrator.Orchestrator,
	logger *log.Entry,
) *Handler {
	if logger == nil {
		logger = log.New().WithField("component", "operator-http")
	}
	return &Handler{
		ledger:    ledger,
		payments:  payments,
		audit:     audit,
		resources: resources,
		orch:      orch,
		logger:    logger,
	}
}

// Routes регистрирует операторские маршруты.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/orders/{orderID}", func(r chi.Router) {
		r.Get("/", h.getOrder)
		r.Get("/payments", h.listPayments)
		r.Get("/audit", h.listAudit)
		r.Get("/resources", h.listResources)
		r.Post("/retry", h.retryFailedItems)
	})
	r.Get("/customers/{customerID}/orders", h.listCustomerOrders)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.ledger.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, orderToResponse(order))
}

func (h *Handler) listCustomerOrders(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	orders, err := h.ledger.ListOrdersByCustomer(r.Context(), chi.URLParam(r, "customerID"), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		resp = append(resp, orderToResponse(order))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"orders": resp})
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	payments, err := h.payments.ListPayments(r.Context(), orderID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, paymentToResponse(p))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"payments": resp})
}

func (h *Handler) listAudit(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	entries, err := h.audit.ListAudit(r.Context(), orderID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]auditResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, auditToResponse(entry))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"entries": resp})
}

func (h *Handler) listResources(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	resources, err := h.resources.ListResources(r.Context(), orderID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]resourceResponse, 0, len(resources))
	for _, res := range resources {
		resp = append(resp, resourceToResponse(res))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"resources": resp})
}

// retryFailedItems запускает ручной повтор упавших позиций и возвращает
// заказ после прохода.
func (h *Handler) retryFailedItems(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	if err := h.orch.RetryFailedItems(r.Context(), orderID); err != nil {
		h.writeError(w, err)
		return
	}

	order, err := h.ledger.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, orderToResponse(order))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.WithError(err).Warn("failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		http.Error(w, "order not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrCustomerNotFound):
		http.Error(w, "customer not found", http.StatusNotFound)
	default:
		h.logger.WithError(err).Error("operator request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

type orderResponse struct {
	ID            string         `json:"id"`
	CustomerID    string         `json:"customer_id"`
	OrderNumber   string         `json:"order_number"`
	Status        string         `json:"status"`
	Currency      string         `json:"currency"`
	SubtotalMinor int64          `json:"subtotal_minor"`
	DiscountMinor int64          `json:"discount_minor"`
	TaxMinor      int64          `json:"tax_minor"`
	TotalMinor    int64          `json:"total_minor"`
	PaymentState  string         `json:"payment_state"`
	PaymentRef    string         `json:"payment_ref,omitempty"`
	Version       int64          `json:"version"`
	Items         []itemResponse `json:"items"`
	PaidAt        *time.Time     `json:"paid_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

type itemResponse struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Config       json.RawMessage `json:"config,omitempty"`
	AmountMinor  int64           `json:"amount_minor"`
	Status       string          `json:"status"`
	RetryCount   int             `json:"retry_count"`
	ExternalRef  string          `json:"external_ref,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	ResourceID   string          `json:"resource_id,omitempty"`
	FulfilledAt  *time.Time      `json:"fulfilled_at,omitempty"`
}

type paymentResponse struct {
	ID                    string    `json:"id"`
	Gateway               string    `json:"gateway"`
	ExternalTransactionID string    `json:"external_transaction_id"`
	Status                string    `json:"status"`
	AmountMinor           int64     `json:"amount_minor"`
	Currency              string    `json:"currency"`
	RefundedMinor         int64     `json:"refunded_minor,omitempty"`
	FailureReason         string    `json:"failure_reason,omitempty"`
	RefundReason          string    `json:"refund_reason,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}

type auditResponse struct {
	ID           string          `json:"id"`
	Actor        string          `json:"actor"`
	Action       string          `json:"action"`
	ItemID       string          `json:"item_id,omitempty"`
	BeforeStatus string          `json:"before_status,omitempty"`
	AfterStatus  string          `json:"after_status,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

type resourceResponse struct {
	ID          string          `json:"id"`
	ItemID      string          `json:"item_id"`
	Kind        string          `json:"kind"`
	ExternalRef string          `json:"external_ref"`
	Attributes  json.RawMessage `json:"attributes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func orderToResponse(order domain.Order) orderResponse {
	items := make([]itemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, itemResponse{
			ID:           item.ID,
			Type:         string(item.Type),
			Config:       json.RawMessage(item.Config),
			AmountMinor:  item.AmountMinor,
			Status:       string(item.Status),
			RetryCount:   item.RetryCount,
			ExternalRef:  item.ExternalRef,
			ErrorMessage: item.ErrorMessage,
			ResourceID:   item.ResourceID,
			FulfilledAt:  item.FulfilledAt,
		})
	}

	return orderResponse{
		ID:            order.ID,
		CustomerID:    order.CustomerID,
		OrderNumber:   order.OrderNumber,
		Status:        string(order.Status),
		Currency:      order.Currency,
		SubtotalMinor: order.SubtotalMinor,
		DiscountMinor: order.DiscountMinor,
		TaxMinor:      order.TaxMinor,
		TotalMinor:    order.TotalMinor,
		PaymentState:  string(order.PaymentState),
		PaymentRef:    order.PaymentRef,
		Version:       order.Version,
		Items:         items,
		PaidAt:        order.PaidAt,
		CompletedAt:   order.CompletedAt,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
}

func paymentToResponse(p domain.Payment) paymentResponse {
	return paymentResponse{
		ID:                    p.ID,
		Gateway:               p.Gateway,
		ExternalTransactionID: p.ExternalTransactionID,
		Status:                string(p.Status),
		AmountMinor:           p.AmountMinor,
		Currency:              p.Currency,
		RefundedMinor:         p.RefundedMinor,
		FailureReason:         p.FailureReason,
		RefundReason:          p.RefundReason,
		CreatedAt:             p.CreatedAt,
	}
}

func auditToResponse(entry domain.AuditEntry) auditResponse {
	return auditResponse{
		ID:           entry.ID,
		Actor:        entry.Actor,
		Action:       string(entry.Action),
		ItemID:       entry.ItemID,
		BeforeStatus: entry.BeforeStatus,
		AfterStatus:  entry.AfterStatus,
		Metadata:     json.RawMessage(entry.Metadata),
		CreatedAt:    entry.CreatedAt,
	}
}

func resourceToResponse(res domain.ProvisionedResource) resourceResponse {
	return resourceResponse{
		ID:          res.ID,
		ItemID:      res.ItemID,
		Kind:        string(res.Kind),
		ExternalRef: res.ExternalRef,
		Attributes:  json.RawMessage(res.Attributes),
		CreatedAt:   res.CreatedAt,
	}
}
