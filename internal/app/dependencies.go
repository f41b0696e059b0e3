package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/resellerd/internal/adapter/certauth"
	"github.com/vladislavdragonenkov/resellerd/internal/adapter/hosting"
	"github.com/vladislavdragonenkov/resellerd/internal/adapter/mailhost"
	"github.com/vladislavdragonenkov/resellerd/internal/adapter/registrar"
	"github.com/vladislavdragonenkov/resellerd/internal/adapter/security"
	"github.com/vladislavdragonenkov/resellerd/internal/domain"
	"github.com/vladislavdragonenkov/resellerd/internal/service/orchestrator"
	"github.com/vladislavdragonenkov/resellerd/internal/storage/memory"
)

// Dependencies содержит зависимости оркестрации заказов.
type Dependencies struct {
	Ledger        domain.Ledger
	Customers     domain.CustomerRepository
	Contacts      domain.ContactRepository
	WebhookEvents domain.WebhookEventRepository
	OutboxRepo    domain.OutboxRepository
	Adapters      orchestrator.Adapters
	Logger        *log.Entry
}

// NewDependencies создаёт in-memory зависимости приложения.
// NOTE: В production окружении provisioning-адаптеры должны быть заменены
// на реальные клиенты регистратора, хостинга, CA, security- и mail-провайдеров.
func NewDependencies(logger *log.Entry) *Dependencies {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	customers := memory.NewCustomerRepository()
	outboxRepo := memory.NewOutboxRepository()

	return &Dependencies{
		Ledger:        memory.NewLedger(outboxRepo, customers),
		Customers:     customers,
		Contacts:      memory.NewContactRepository(),
		WebhookEvents: memory.NewWebhookEventRepository(),
		OutboxRepo:    outboxRepo,
		Adapters:      mockAdapters(),
		Logger:        logger,
	}
}

// mockAdapters собирает mock-реализации всех provisioning-систем.
func mockAdapters() orchestrator.Adapters {
	return orchestrator.Adapters{
		Registrar:    registrar.NewMockService(),
		Hosting:      hosting.NewMockService(),
		Certificates: certauth.NewMockService(),
		Security:     security.NewMockService(),
		Mailboxes:    mailhost.NewMockService(),
	}
}
