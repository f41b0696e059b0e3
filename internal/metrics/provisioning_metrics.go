package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProvisioningMetrics содержит метрики оркестрации заказов.
type ProvisioningMetrics struct {
	// Счётчики исходов заказов
	ordersProcessed *prometheus.CounterVec

	// Счётчики позиций по типу услуги и результату
	itemsProvisioned *prometheus.CounterVec

	// Гистограммы времени выполнения
	orderDuration prometheus.Histogram
	itemDuration  *prometheus.HistogramVec

	// Счётчики webhook-событий по результату приёма
	webhookEvents *prometheus.CounterVec

	// Счётчики retry-проходов
	retryRuns prometheus.Counter

	// Gauge для активных fan-out задач
	activeProvisioning prometheus.Gauge
}

// NewProvisioningMetrics создаёт новый экземпляр метрик оркестрации.
func NewProvisioningMetrics() *ProvisioningMetrics {
	return newProvisioningMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newProvisioningMetricsWithRegisterer(registerer prometheus.Registerer) *ProvisioningMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ProvisioningMetrics{
		ordersProcessed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "resellerd_orders_processed_total",
			Help: "Total number of payment-confirmed orders grouped by final status",
		}, []string{"status"}),
		itemsProvisioned: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "resellerd_items_provisioned_total",
			Help: "Total number of order items processed grouped by item type and result",
		}, []string{"item_type", "result"}),
		orderDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "resellerd_order_processing_duration_seconds",
			Help:    "Duration of full order provisioning in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		itemDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "resellerd_item_provisioning_duration_seconds",
			Help:    "Duration of individual item provisioning calls in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		}, []string{"item_type"}),
		webhookEvents: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "resellerd_webhook_events_total",
			Help: "Total number of inbound webhook deliveries grouped by result",
		}, []string{"result"}),
		retryRuns: registerCounter(registerer, prometheus.CounterOpts{
			Name: "resellerd_retry_runs_total",
			Help: "Total number of retry passes over failed order items",
		}),
		activeProvisioning: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "resellerd_active_provisioning_tasks",
			Help: "Number of currently running item provisioning calls",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderProcessed увеличивает счётчик заказов для финального статуса.
func (m *ProvisioningMetrics) RecordOrderProcessed(status string) {
	m.ordersProcessed.WithLabelValues(status).Inc()
}

// RecordItemResult увеличивает счётчик позиций для типа услуги и результата.
func (m *ProvisioningMetrics) RecordItemResult(itemType, result string) {
	m.itemsProvisioned.WithLabelValues(itemType, result).Inc()
}

// RecordOrderDuration записывает время полной обработки заказа.
func (m *ProvisioningMetrics) RecordOrderDuration(duration time.Duration) {
	m.orderDuration.Observe(duration.Seconds())
}

// RecordItemDuration записывает время одного provisioning-вызова.
func (m *ProvisioningMetrics) RecordItemDuration(itemType string, duration time.Duration) {
	m.itemDuration.WithLabelValues(itemType).Observe(duration.Seconds())
}

// RecordWebhook увеличивает счётчик webhook-доставок для результата приёма.
func (m *ProvisioningMetrics) RecordWebhook(result string) {
	m.webhookEvents.WithLabelValues(result).Inc()
}

// RecordRetryRun увеличивает счётчик retry-проходов.
func (m *ProvisioningMetrics) RecordRetryRun() {
	m.retryRuns.Inc()
}

// ProvisioningStarted увеличивает gauge активных provisioning-задач.
func (m *ProvisioningMetrics) ProvisioningStarted() {
	m.activeProvisioning.Inc()
}

// ProvisioningFinished уменьшает gauge активных provisioning-задач.
func (m *ProvisioningMetrics) ProvisioningFinished() {
	m.activeProvisioning.Dec()
}
