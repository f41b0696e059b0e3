package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/resellerd/internal/adapter/gateway"
)

const (
	defaultTotal       = 1000
	defaultConcurrency = 16
	defaultTimeout     = 10 * time.Second
)

type loadMode string

const (
	// modeSuccess — только payment.success доставки.
	modeSuccess loadMode = "success"
	// modeMixed — payment.success с долей refund-доставок.
	modeMixed loadMode = "mixed"
	// modeDuplicate — повторная доставка одного события; нагружает dedup-путь intake.
	modeDuplicate loadMode = "duplicate"
)

type config struct {
	baseURL     string
	gatewayName string
	secret      string
	mode        loadMode
	total       int
	concurrency int
	refundRate  int
	timeout     time.Duration
	reportPath  string
	orderPrefix string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type scenarioReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Statuses  map[string]int64 `json:"statuses"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt        time.Time                 `json:"started_at"`
	DurationSeconds  float64                   `json:"duration_seconds"`
	TotalDeliveries  int64                     `json:"total_deliveries"`
	AcceptedCount    int64                     `json:"accepted"`
	FailedCount      int64                     `json:"failed"`
	ErrorRate        float64                   `json:"error_rate"`
	RPS              float64                   `json:"rps"`
	OverallLatencyMs latencySummary            `json:"overall_latency_ms"`
	Scenarios        map[string]scenarioReport `json:"scenarios"`
}

type scenarioStats struct {
	calls     int64
	success   int64
	failed    int64
	statuses  map[string]int64
	latencies []float64
}

type collector struct {
	mu        sync.Mutex
	scenarios map[string]*scenarioStats
}

func newCollector() *collector {
	return &collector{
		scenarios: make(map[string]*scenarioStats),
	}
}

// record фиксирует одну доставку: 2xx считается успехом.
func (c *collector) record(scenario string, latency time.Duration, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.scenarios[scenario]
	if !ok {
		stats = &scenarioStats{statuses: make(map[string]int64)}
		c.scenarios[scenario] = stats
	}

	stats.calls++
	if status >= 200 && status < 300 {
		stats.success++
	} else {
		stats.failed++
	}
	stats.statuses[fmt.Sprintf("%d", status)]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) snapshot(name string) (scenarioReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.scenarios[name]
	if !ok {
		return scenarioReport{}, false
	}

	statuses := make(map[string]int64, len(stats.statuses))
	for status, count := range stats.statuses {
		statuses[status] = count
	}

	return scenarioReport{
		Calls:     stats.calls,
		Success:   stats.success,
		Failed:    stats.failed,
		ErrorRate: ratio(stats.failed, stats.calls),
		Statuses:  statuses,
		LatencyMs: buildLatencySummary(append([]float64(nil), stats.latencies...)),
	}, true
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	names := make([]string, 0, len(c.scenarios))
	for name := range c.scenarios {
		names = append(names, name)
	}
	c.mu.Unlock()
	sort.Strings(names)

	result := report{
		StartedAt: startedAt,
		Scenarios: make(map[string]scenarioReport, len(names)),
	}

	var allLatencies []float64
	for _, name := range names {
		snap, ok := c.snapshot(name)
		if !ok {
			continue
		}
		result.Scenarios[name] = snap
		result.TotalDeliveries += snap.Calls
		result.AcceptedCount += snap.Success
		result.FailedCount += snap.Failed

		c.mu.Lock()
		allLatencies = append(allLatencies, c.scenarios[name].latencies...)
		c.mu.Unlock()
	}

	result.DurationSeconds = duration.Seconds()
	result.ErrorRate = ratio(result.FailedCount, result.TotalDeliveries)
	if duration > 0 {
		result.RPS = float64(result.TotalDeliveries) / duration.Seconds()
	}
	result.OverallLatencyMs = buildLatencySummary(allLatencies)

	return result
}

func parseConfig() (config, error) {
	var (
		cfg     config
		modeRaw string
	)

	flag.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "base URL of the resellerd HTTP API")
	flag.StringVar(&cfg.gatewayName, "gateway", "test", "gateway name for the webhook path")
	flag.StringVar(&cfg.secret, "secret", "", "HMAC secret; empty secret sends unsigned deliveries")
	flag.StringVar(&modeRaw, "mode", string(modeSuccess), "load mode: success|mixed|duplicate")
	flag.IntVar(&cfg.total, "total", defaultTotal, "total number of webhook deliveries")
	flag.IntVar(&cfg.concurrency, "concurrency", defaultConcurrency, "number of concurrent senders")
	flag.IntVar(&cfg.refundRate, "refund-rate", 10, "percentage of refund deliveries in mixed mode (0-100)")
	flag.DurationVar(&cfg.timeout, "timeout", defaultTimeout, "per-request timeout")
	flag.StringVar(&cfg.reportPath, "report", "", "path for the JSON report (optional)")
	flag.StringVar(&cfg.orderPrefix, "order-prefix", "loadtest-order", "order id prefix for synthetic deliveries")
	flag.Parse()

	if strings.TrimSpace(cfg.baseURL) == "" {
		return config{}, fmt.Errorf("url is required")
	}
	if strings.TrimSpace(cfg.gatewayName) == "" {
		return config{}, fmt.Errorf("gateway is required")
	}
	if cfg.total <= 0 {
		return config{}, fmt.Errorf("total must be > 0")
	}
	if cfg.concurrency <= 0 {
		return config{}, fmt.Errorf("concurrency must be > 0")
	}
	if cfg.refundRate < 0 || cfg.refundRate > 100 {
		return config{}, fmt.Errorf("refund-rate must be within [0,100]")
	}
	if cfg.timeout <= 0 {
		return config{}, fmt.Errorf("timeout must be > 0")
	}

	mode, err := parseMode(modeRaw)
	if err != nil {
		return config{}, err
	}
	cfg.mode = mode
	cfg.baseURL = strings.TrimRight(cfg.baseURL, "/")

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.ToLower(strings.TrimSpace(value))) {
	case modeSuccess:
		return modeSuccess, nil
	case modeMixed:
		return modeMixed, nil
	case modeDuplicate:
		return modeDuplicate, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s (use success|mixed|duplicate)", value)
	}
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: cfg.timeout}
	col := newCollector()

	// В duplicate-режиме все доставки несут один event id.
	duplicateEventID := uuid.NewString()
	duplicateOrderID := fmt.Sprintf("%s-%s", cfg.orderPrefix, uuid.NewString())

	jobs := make(chan int)
	var wg sync.WaitGroup

	startedAt := time.Now()
	for i := 0; i < cfg.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				sendDelivery(context.Background(), client, cfg, col, index, duplicateEventID, duplicateOrderID)
			}
		}()
	}

	for i := 0; i < cfg.total; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	duration := time.Since(startedAt)
	result := col.buildReport(startedAt, duration)
	printReport(result, cfg)

	if cfg.reportPath != "" {
		if err := writeJSONReport(cfg.reportPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}
}

func sendDelivery(
	ctx context.Context,
	client *http.Client,
	cfg config,
	col *collector,
	index int,
	duplicateEventID string,
	duplicateOrderID string,
) {
	scenario := "payment.success"
	eventType := "payment.success"
	eventID := uuid.NewString()
	orderID := fmt.Sprintf("%s-%d", cfg.orderPrefix, index)

	switch cfg.mode {
	case modeMixed:
		if shouldRefund(index, cfg.refundRate) {
			scenario = "payment.refunded"
			eventType = "payment.refunded"
		}
	case modeDuplicate:
		scenario = "duplicate"
		eventID = duplicateEventID
		orderID = duplicateOrderID
	}

	payload := buildPayload(eventID, eventType, orderID)
	status, latency, err := postWebhook(ctx, client, cfg, payload)
	if err != nil {
		col.record(scenario, latency, 0)
		return
	}
	col.record(scenario, latency, status)
}

// buildPayload собирает конверт платёжного события в формате intake.
func buildPayload(eventID, eventType, orderID string) []byte {
	payload, _ := json.Marshal(map[string]any{
		"event_id":       eventID,
		"event_type":     eventType,
		"order_id":       orderID,
		"transaction_id": "txn-" + eventID,
		"amount_minor":   int64(1500),
		"currency":       "USD",
	})
	return payload
}

func postWebhook(ctx context.Context, client *http.Client, cfg config, payload []byte) (int, time.Duration, error) {
	url := fmt.Sprintf("%s/webhooks/%s", cfg.baseURL, cfg.gatewayName)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.secret != "" {
		verifier := gateway.NewHMACVerifier(cfg.secret)
		req.Header.Set("X-Webhook-Signature", "sha256="+verifier.Sign(payload))
	}

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, latency, nil
}

// shouldRefund детерминированно распределяет refund-доставки по refundRate процентам.
func shouldRefund(index, refundRate int) bool {
	if refundRate <= 0 {
		return false
	}
	if refundRate >= 100 {
		return true
	}
	return index%100 < refundRate
}

func writeJSONReport(path string, result report) error {
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return fmt.Errorf("write report file: %w", err)
	}
	return nil
}

func printReport(result report, cfg config) {
	fmt.Printf("webhook loadtest finished: mode=%s target=%s/webhooks/%s\n", cfg.mode, cfg.baseURL, cfg.gatewayName)
	fmt.Printf("deliveries=%d accepted=%d failed=%d error_rate=%.4f rps=%.1f\n",
		result.TotalDeliveries, result.AcceptedCount, result.FailedCount, result.ErrorRate, result.RPS)
	fmt.Printf("latency_ms: p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.OverallLatencyMs.P50, result.OverallLatencyMs.P95, result.OverallLatencyMs.P99, result.OverallLatencyMs.Max)

	names := make([]string, 0, len(result.Scenarios))
	for name := range result.Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		snap := result.Scenarios[name]
		fmt.Printf("  %s: calls=%d success=%d failed=%d statuses=%v\n",
			name, snap.Calls, snap.Success, snap.Failed, snap.Statuses)
	}
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sort.Float64s(values)

	var sum float64
	for _, value := range values {
		sum += value
	}

	return latencySummary{
		Min: values[0],
		Max: values[len(values)-1],
		Avg: sum / float64(len(values)),
		P50: percentile(values, 50),
		P95: percentile(values, 95),
		P99: percentile(values, 99),
	}
}

// percentile считает перцентиль по отсортированному списку с линейной интерполяцией.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

func ratio(failed, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
