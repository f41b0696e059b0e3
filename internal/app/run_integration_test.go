package app

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/resellerd/internal/health"
	"github.com/vladislavdragonenkov/resellerd/internal/messaging/kafka"
)

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")

	cfg := DefaultConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.StorageDriver = StorageDriverMemory

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRun_InvalidStorageDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "invalid-driver"
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"

	err := Run(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "unsupported storage driver") {
		t.Fatalf("expected unsupported storage driver error, got %v", err)
	}
}

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := postgresTestDSNCandidate()
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn
	cfg.PostgresAutoMigrate = true

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "postgres-init"))
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	if deps.closeFn != nil {
		defer func() { _ = deps.closeFn() }()
	}

	if deps.ledger == nil || deps.outboxRepo == nil || deps.webhookEvents == nil || deps.webhookPurger == nil {
		t.Fatalf("postgres dependencies must be initialized: %+v", deps)
	}
	if deps.storageChecker == nil {
		t.Fatal("expected non-nil storage checker for postgres")
	}
	check := deps.storageChecker.Check()
	if check.Status != healthcheck.StatusHealthy {
		t.Fatalf("expected healthy storage checker, got %+v", check)
	}
}

func TestShutdownHelpers(t *testing.T) {
	logger := log.WithField("test", "shutdown")

	// nil-канал и nil closeFn не должны блокировать или паниковать.
	waitForWorker(nil, logger, "noop")

	done := make(chan struct{})
	close(done)
	waitForWorker(done, logger, "closed")

	closeStorage(nil, logger)
	closed := false
	closeStorage(func() error {
		closed = true
		return nil
	}, logger)
	if !closed {
		t.Fatal("expected storage close func to be called")
	}

	closeKafka(nil, logger)
}

func TestCloseKafka_NonNil(t *testing.T) {
	producer, err := kafka.NewProducer([]string{"localhost:9092"})
	if err != nil {
		t.Skipf("kafka is not available for integration test: %v", err)
	}
	closeKafka(producer, log.WithField("test", "kafka-close"))
}

func postgresTestDSNCandidate() string {
	return strings.TrimSpace(os.Getenv("RESELLERD_POSTGRES_TEST_DSN"))
}
