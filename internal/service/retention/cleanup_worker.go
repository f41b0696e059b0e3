package retention

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/resellerd/internal/domain"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
	defaultRetentionPeriod  = 30 * 24 * time.Hour
)

var (
	webhookCleanupRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resellerd_webhook_retention_runs_total",
		Help: "Total number of webhook retention runs grouped by result.",
	}, []string{"result"})
	webhookCleanupDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resellerd_webhook_retention_deleted_total",
		Help: "Total number of deleted processed webhook events.",
	})
	webhookCleanupLastDeleted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "resellerd_webhook_retention_last_deleted",
		Help: "Number of deleted webhook events during the last retention run.",
	})
)

// CleanupOptions задает параметры воркера очистки webhook-журнала.
type CleanupOptions struct {
	Logger    *log.Entry
	Interval  time.Duration
	BatchSize int
	Retention time.Duration
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupOptions)

// WithLogger задает logger для воркера.
func WithLogger(logger *log.Entry) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Logger = logger
	}
}

// WithInterval задает интервал между cleanup-циклами.
func WithInterval(interval time.Duration) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Interval = interval
	}
}

// WithBatchSize задает размер batch для одного удаления.
func WithBatchSize(batchSize int) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.BatchSize = batchSize
	}
}

// WithRetention задает срок хранения обработанных событий.
func WithRetention(retention time.Duration) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Retention = retention
	}
}

// CleanupWorker периодически удаляет обработанные webhook-события старше retention.
// Журнал нужен только для дедупликации и разбора инцидентов; pending-события
// воркер не трогает.
type CleanupWorker struct {
	purger    domain.WebhookEventPurger
	logger    *log.Entry
	interval  time.Duration
	batchSize int
	retention time.Duration
}

// NewCleanupWorker создает воркер очистки webhook-журнала.
func NewCleanupWorker(purger domain.WebhookEventPurger, options ...CleanupOption) *CleanupWorker {
	opts := CleanupOptions{
		Interval:  defaultCleanupInterval,
		BatchSize: defaultCleanupBatchSize,
		Retention: defaultRetentionPeriod,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "webhook-retention-worker")
	}

	if opts.Interval <= 0 {
		opts.Interval = defaultCleanupInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultCleanupBatchSize
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetentionPeriod
	}

	return &CleanupWorker{
		purger:    purger,
		logger:    logger,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		retention: opts.Retention,
	}
}

// Run запускает периодическую очистку до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.purger == nil {
		w.logger.Warn("webhook retention worker is disabled: purger is nil")
		return
	}

	w.cleanup(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cleanup(ctx)
		}
	}
}

func (w *CleanupWorker) cleanup(ctx context.Context) {
	before := time.Now().UTC().Add(-w.retention)

	deleted, err := w.DeleteProcessed(ctx, before)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		webhookCleanupRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("webhook retention run failed")
		return
	}

	webhookCleanupRunsTotal.WithLabelValues("ok").Inc()
	webhookCleanupLastDeleted.Set(float64(deleted))
	if deleted > 0 {
		w.logger.WithField("deleted", deleted).Info("webhook retention completed")
	}
}

// DeleteProcessed удаляет все обработанные события старше before порциями batchSize.
func (w *CleanupWorker) DeleteProcessed(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC().Add(-w.retention)
	}

	totalDeleted := 0
	for {
		if err := ctx.Err(); err != nil {
			return totalDeleted, err
		}

		deleted, err := w.purger.DeleteProcessedBefore(before, w.batchSize)
		if err != nil {
			return totalDeleted, err
		}

		totalDeleted += deleted
		if deleted > 0 {
			webhookCleanupDeletedTotal.Add(float64(deleted))
		}

		if deleted < w.batchSize {
			break
		}
	}

	return totalDeleted, nil
}
