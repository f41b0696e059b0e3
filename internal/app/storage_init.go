package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/resellerd/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/resellerd/internal/health"
	"github.com/vladislavdragonenkov/resellerd/internal/storage/memory"
	"github.com/vladislavdragonenkov/resellerd/internal/storage/postgres"
)

// runtimeDependencies — собранный для выбранного storage-драйвера набор хранилищ.
type runtimeDependencies struct {
	ledger        domain.Ledger
	customers     domain.CustomerRepository
	contacts      domain.ContactRepository
	webhookEvents domain.WebhookEventRepository
	webhookPurger domain.WebhookEventPurger
	outboxRepo    domain.OutboxRepository

	payments  domain.PaymentRepository
	audit     domain.AuditRepository
	resources domain.ResourceRepository

	storageChecker healthcheck.Checker
	closeFn        func() error
}

// initRuntimeDependencies инициализирует хранилища по cfg.StorageDriver.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "storage-init")
	}

	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		return initMemoryDependencies(logger), nil
	case StorageDriverPostgres:
		return initPostgresDependencies(ctx, cfg, logger)
	default:
		return runtimeDependencies{}, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func initMemoryDependencies(logger *log.Entry) runtimeDependencies {
	customers := memory.NewCustomerRepository()
	outboxRepo := memory.NewOutboxRepository()
	ledger := memory.NewLedger(outboxRepo, customers)
	webhookRepo := memory.NewWebhookEventRepository()

	logger.Info("using in-memory storage")

	return runtimeDependencies{
		ledger:        ledger,
		customers:     customers,
		contacts:      memory.NewContactRepository(),
		webhookEvents: webhookRepo,
		webhookPurger: webhookRepo,
		outboxRepo:    outboxRepo,
		payments:      ledger,
		audit:         ledger,
		resources:     ledger,
	}
}

func initPostgresDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	if cfg.PostgresDSN == "" {
		return runtimeDependencies{}, fmt.Errorf("postgres storage driver requires DSN")
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return runtimeDependencies{}, fmt.Errorf("open postgres storage: %w", err)
	}

	if cfg.PostgresAutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return runtimeDependencies{}, fmt.Errorf("apply postgres migrations: %w", err)
		}
	}

	ledger := postgres.NewLedger(store)
	webhookRepo := postgres.NewWebhookEventRepository(store)
	webhookPurger, _ := webhookRepo.(domain.WebhookEventPurger)

	logger.Info("using postgres storage")

	return runtimeDependencies{
		ledger:        ledger,
		customers:     postgres.NewCustomerRepository(store),
		contacts:      postgres.NewContactRepository(store),
		webhookEvents: webhookRepo,
		webhookPurger: webhookPurger,
		outboxRepo:    postgres.NewOutboxRepository(store),
		payments:      ledger,
		audit:         ledger,
		resources:     ledger,
		storageChecker: healthcheck.NewSimpleChecker("postgres", func() error {
			return store.Ping(context.Background())
		}),
		closeFn: store.Close,
	}, nil
}
