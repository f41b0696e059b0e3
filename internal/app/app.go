package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/resellerd/internal/adapter/gateway"
	"github.com/vladislavdragonenkov/resellerd/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/resellerd/internal/health"
	"github.com/vladislavdragonenkov/resellerd/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/resellerd/internal/service/operator"
	"github.com/vladislavdragonenkov/resellerd/internal/service/outbox"
	"github.com/vladislavdragonenkov/resellerd/internal/service/retention"
	"github.com/vladislavdragonenkov/resellerd/internal/service/webhook"
	"github.com/vladislavdragonenkov/resellerd/internal/version"
)

// Run поднимает приложение: хранилище, оркестратор, HTTP API, воркеры
// и сервер метрик. Блокируется до отмены ctx или фатальной ошибки сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	rdeps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}

	deps := &Dependencies{
		Ledger:        rdeps.ledger,
		Customers:     rdeps.customers,
		Contacts:      rdeps.contacts,
		WebhookEvents: rdeps.webhookEvents,
		OutboxRepo:    rdeps.outboxRepo,
		// NOTE: mock-адаптеры; в production заменяются на реальные клиенты
		// provisioning-систем.
		Adapters: mockAdapters(),
		Logger:   logger,
	}
	orch := createOrchestrator(deps, cfg)

	verifiers := webhookVerifiersFromEnv()
	if len(verifiers) == 0 {
		// Dev-режим: без секретов в окружении регистрируем шлюз "test"
		// с mock-верификатором, чтобы intake оставался проверяемым вручную.
		logger.Warn("no webhook secrets configured, registering mock verifier for gateway \"test\"")
		verifiers = map[string]domain.WebhookVerifier{"test": &gateway.MockVerifier{Accept: true}}
	}

	intake := webhook.NewIntake(verifiers, rdeps.webhookEvents, orch, logger.WithField("component", "webhook-intake"))
	webhookHandler := webhook.NewHandler(intake, logger.WithField("component", "webhook-http"))
	operatorHandler := operator.NewHandler(
		rdeps.ledger, rdeps.payments, rdeps.audit, rdeps.resources, orch,
		logger.WithField("component", "operator-http"),
	)

	healthHandler := healthcheck.NewHandler(version.Version())
	if rdeps.storageChecker != nil {
		healthHandler.RegisterChecker("storage", rdeps.storageChecker)
	}
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	// Kafka producer опционален: без брокеров подтверждения копятся в outbox.
	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)

	workersCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	var outboxDone chan struct{}
	if kafkaProducer != nil {
		worker := outbox.NewWorker(
			rdeps.outboxRepo,
			kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicOrderEvents),
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithDLQPublisher(kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicDeadLetterQueue)),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		outboxDone = make(chan struct{})
		go func() {
			defer close(outboxDone)
			worker.Run(workersCtx)
		}()
	} else {
		logger.Info("kafka is not configured, outbox worker disabled")
	}

	cleanupWorker := retention.NewCleanupWorker(
		rdeps.webhookPurger,
		retention.WithLogger(logger.WithField("component", "webhook-retention-worker")),
		retention.WithInterval(cfg.WebhookCleanupInterval),
		retention.WithBatchSize(cfg.WebhookCleanupBatchSize),
		retention.WithRetention(cfg.WebhookRetention),
	)
	retentionDone := make(chan struct{})
	go func() {
		defer close(retentionDone)
		cleanupWorker.Run(workersCtx)
	}()

	apiSrv := newAPIServer(cfg.HTTPAddr, webhookHandler, operatorHandler)

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	shutdown := func() {
		shutdownHTTP(apiSrv, logger)
		stopWorkers()
		waitForWorker(outboxDone, logger, "outbox")
		waitForWorker(retentionDone, logger, "webhook-retention")
		shutdownHTTP(metricsSrv, logger)
		closeKafka(kafkaProducer, logger)
		closeStorage(rdeps.closeFn, logger)
	}

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP API")
		shutdown()
		return ctx.Err()
	case err := <-errCh:
		shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// waitForWorker ждёт завершения фонового воркера с таймаутом.
func waitForWorker(done <-chan struct{}, logger *log.Entry, name string) {
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.WithField("worker", name).Warn("worker did not stop in time")
	}
}

// closeStorage закрывает подключение к хранилищу, если оно было открыто.
func closeStorage(closeFn func() error, logger *log.Entry) {
	if closeFn == nil {
		return
	}
	if err := closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}
