package webhook

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/resellerd/internal/domain"
)

// SignatureHeader — заголовок с HMAC-подписью payload.
const SignatureHeader = "X-Webhook-Signature"

// maxPayloadBytes ограничивает размер тела webhook.
const maxPayloadBytes = 1 << 20

// Handler — HTTP-прокладка над Intake.
type Handler struct {
	intake *Intake
	logger *log.Entry
}

// NewHandler создаёт HTTP-handler приёма webhook.
func NewHandler(intake *Intake, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.New().WithField("component", "webhook-http")
	}
	return &Handler{intake: intake, logger: logger}
}

// Routes регистрирует маршруты приёма webhook.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/webhooks/{gateway}", h.receive)
}

// receive транслирует HTTP-доставку в Intake.Receive и маппит ошибки на статусы.
// 5xx заставляет шлюз повторить доставку — событие остаётся pending.
func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	gateway := chi.URLParam(r, "gateway")

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	err = h.intake.Receive(r.Context(), gateway, payload, r.Header.Get(SignatureHeader))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	case errors.Is(err, domain.ErrUnknownGateway):
		http.Error(w, "unknown gateway", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidSignature):
		http.Error(w, "invalid signature", http.StatusUnauthorized)
	case errors.Is(err, domain.ErrOrderNotFound):
		http.Error(w, "order not found", http.StatusNotFound)
	default:
		h.logger.WithError(err).WithField("gateway", gateway).Error("webhook processing failed")
		http.Error(w, "processing failed", http.StatusInternalServerError)
	}
}
