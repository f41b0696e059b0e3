package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/resellerd/internal/adapter/gateway"
	"github.com/vladislavdragonenkov/resellerd/internal/domain"
)

// Драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// webhookSecretPrefix — префикс env-переменных с HMAC-секретами шлюзов,
// например RESELLERD_WEBHOOK_SECRET_STRIPE=whsec_xxx для шлюза "stripe".
const webhookSecretPrefix = "RESELLERD_WEBHOOK_SECRET_"

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	KafkaBrokers string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	WebhookRetention        time.Duration
	WebhookCleanupInterval  time.Duration
	WebhookCleanupBatchSize int

	AdapterTimeout time.Duration
	FanOutLimit    int
}

// DefaultConfig возвращает настройки по умолчанию: in-memory storage,
// HTTP API на :8080 и метрики на :9090.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   50 * time.Millisecond,

		WebhookRetention:        30 * 24 * time.Hour,
		WebhookCleanupInterval:  10 * time.Minute,
		WebhookCleanupBatchSize: 500,

		AdapterTimeout: 30 * time.Second,
		FanOutLimit:    8,
	}
}

// ConfigFromEnv строит конфигурацию поверх DefaultConfig из переменных окружения.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	cfg.HTTPAddr = envString("RESELLERD_HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = envString("RESELLERD_METRICS_ADDR", cfg.MetricsAddr)

	cfg.PostgresDSN = envString("DATABASE_URL", cfg.PostgresDSN)
	cfg.PostgresDSN = envString("RESELLERD_POSTGRES_DSN", cfg.PostgresDSN)
	cfg.StorageDriver = envString("RESELLERD_STORAGE_DRIVER", cfg.StorageDriver)
	if cfg.StorageDriver == StorageDriverMemory && cfg.PostgresDSN != "" {
		cfg.StorageDriver = StorageDriverPostgres
	}
	cfg.PostgresAutoMigrate = envBool("RESELLERD_POSTGRES_AUTO_MIGRATE", cfg.PostgresAutoMigrate)

	cfg.KafkaBrokers = envString("KAFKA_BROKERS", cfg.KafkaBrokers)

	cfg.OutboxPollInterval = envDuration("RESELLERD_OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval)
	cfg.OutboxBatchSize = envInt("RESELLERD_OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxMaxAttempts = envInt("RESELLERD_OUTBOX_MAX_ATTEMPTS", cfg.OutboxMaxAttempts)
	cfg.OutboxRetryDelay = envDuration("RESELLERD_OUTBOX_RETRY_DELAY", cfg.OutboxRetryDelay)

	cfg.WebhookRetention = envDuration("RESELLERD_WEBHOOK_RETENTION", cfg.WebhookRetention)
	cfg.WebhookCleanupInterval = envDuration("RESELLERD_WEBHOOK_CLEANUP_INTERVAL", cfg.WebhookCleanupInterval)
	cfg.WebhookCleanupBatchSize = envInt("RESELLERD_WEBHOOK_CLEANUP_BATCH_SIZE", cfg.WebhookCleanupBatchSize)

	cfg.AdapterTimeout = envDuration("RESELLERD_ADAPTER_TIMEOUT", cfg.AdapterTimeout)
	cfg.FanOutLimit = envInt("RESELLERD_FANOUT_LIMIT", cfg.FanOutLimit)

	return cfg
}

// webhookVerifiersFromEnv собирает per-gateway HMAC-верификаторы из окружения.
// Имя шлюза берётся из суффикса переменной в нижнем регистре.
func webhookVerifiersFromEnv() map[string]domain.WebhookVerifier {
	verifiers := make(map[string]domain.WebhookVerifier)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, webhookSecretPrefix) {
			continue
		}
		gatewayName := strings.ToLower(strings.TrimPrefix(name, webhookSecretPrefix))
		if gatewayName == "" || value == "" {
			continue
		}
		verifiers[gatewayName] = gateway.NewHMACVerifier(value)
	}
	return verifiers
}

func envString(name, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		return value
	}
	return fallback
}

func envBool(name string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envInt(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envDuration(name string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
