// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name when none is configured.
const DefaultNamespace = "fx_signal_lab"

// Metrics holds all Prometheus metrics for the application.
// Each instance owns its registry so several can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	// Signal metrics
	SignalsAnalyzed *prometheus.CounterVec
	SignalsRecorded *prometheus.CounterVec
	SignalsRejected prometheus.Counter

	// Verification metrics
	VerificationResults   *prometheus.CounterVec
	VerificationPasses    *prometheus.CounterVec
	VerificationDuration  prometheus.Histogram
	DueTasks              prometheus.Gauge
	DuplicateCompletions  prometheus.Counter
	PriceFetchErrors      *prometheus.CounterVec
	PriceFetchLatency     *prometheus.HistogramVec
	NotificationsSent     *prometheus.CounterVec
	StatisticsRecomputed  prometheus.Counter
	StatisticsTotalTrades *prometheus.GaugeVec
	StatisticsWinRate     *prometheus.GaugeVec
	StatisticsEV          *prometheus.GaugeVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Health metrics
	LastSuccessfulVerification prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered on a
// fresh registry, together with the Go and process collectors.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Signal metrics
		SignalsAnalyzed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "analyzed_total",
			Help:      "Total number of analysis texts classified, by action",
		}, []string{"action"}),
		SignalsRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "recorded_total",
			Help:      "Total number of signals recorded, by pair and action",
		}, []string{"pair", "action"}),
		SignalsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "rejected_total",
			Help:      "Total number of signals rejected as invalid",
		}),

		// Verification metrics
		VerificationResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "results_total",
			Help:      "Total number of verification checks, by result",
		}, []string{"result"}),
		VerificationPasses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "passes_total",
			Help:      "Total number of verification passes, by status",
		}, []string{"status"}),
		VerificationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "pass_duration_seconds",
			Help:      "Verification pass duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		DueTasks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "due_tasks",
			Help:      "Number of due tasks found by the latest pass",
		}),
		DuplicateCompletions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "duplicate_completions_total",
			Help:      "Completions skipped because the signal was already resolved",
		}),
		PriceFetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricefeed",
			Name:      "errors_total",
			Help:      "Total number of failed price lookups, by feed",
		}, []string{"feed"}),
		PriceFetchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pricefeed",
			Name:      "latency_seconds",
			Help:      "Price lookup latency in seconds, by feed",
			Buckets:   prometheus.DefBuckets,
		}, []string{"feed"}),
		NotificationsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Total number of notifications, by notifier and status",
		}, []string{"notifier", "status"}),
		StatisticsRecomputed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "statistics",
			Name:      "recomputed_total",
			Help:      "Total number of statistics recomputations",
		}),
		StatisticsTotalTrades: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "statistics",
			Name:      "total_trades",
			Help:      "Completed signals in the latest statistics, by pair",
		}, []string{"pair"}),
		StatisticsWinRate: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "statistics",
			Name:      "win_rate",
			Help:      "Win rate in the latest statistics, by pair",
		}, []string{"pair"}),
		StatisticsEV: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "statistics",
			Name:      "expected_value",
			Help:      "Expected value per trade in price units, by pair",
		}, []string{"pair"}),

		// HTTP metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		// Health metrics
		LastSuccessfulVerification: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_verification_timestamp",
			Help:      "Unix timestamp of last verification pass without errors",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, e.g. for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// OrDefault returns m, or DefaultMetrics when m is nil.
func OrDefault(m *Metrics) *Metrics {
	if m == nil {
		return DefaultMetrics
	}
	return m
}

// pairLabel names the all-pairs aggregate.
func pairLabel(pair string) string {
	if pair == "" {
		return "ALL"
	}
	return pair
}

// RecordAnalyzed counts one classified text.
func (m *Metrics) RecordAnalyzed(action string) {
	m.SignalsAnalyzed.WithLabelValues(action).Inc()
}

// RecordSignal counts one recorded signal.
func (m *Metrics) RecordSignal(pair, action string) {
	m.SignalsRecorded.WithLabelValues(pair, action).Inc()
}

// RecordRejected counts one rejected signal.
func (m *Metrics) RecordRejected() {
	m.SignalsRejected.Inc()
}

// RecordVerification counts one check outcome.
func (m *Metrics) RecordVerification(result string) {
	m.VerificationResults.WithLabelValues(result).Inc()
}

// RecordDuplicateCompletion counts one completion lost to an earlier one.
func (m *Metrics) RecordDuplicateCompletion() {
	m.DuplicateCompletions.Inc()
}

// RecordPass records a finished verification pass.
func (m *Metrics) RecordPass(due int, failed int, d time.Duration, at time.Time) {
	m.DueTasks.Set(float64(due))
	m.VerificationDuration.Observe(d.Seconds())
	if failed > 0 {
		m.VerificationPasses.WithLabelValues("partial").Inc()
		return
	}
	m.VerificationPasses.WithLabelValues("ok").Inc()
	m.LastSuccessfulVerification.Set(float64(at.Unix()))
}

// RecordPassError records a verification pass that could not run.
func (m *Metrics) RecordPassError() {
	m.VerificationPasses.WithLabelValues("error").Inc()
}

// RecordPriceFetch records a price lookup.
func (m *Metrics) RecordPriceFetch(feed string, d time.Duration, err error) {
	m.PriceFetchLatency.WithLabelValues(feed).Observe(d.Seconds())
	if err != nil {
		m.PriceFetchErrors.WithLabelValues(feed).Inc()
	}
}

// RecordNotification records a notification attempt.
func (m *Metrics) RecordNotification(notifier string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.NotificationsSent.WithLabelValues(notifier, status).Inc()
}

// RecordStatistics updates the statistics gauges for pair.
func (m *Metrics) RecordStatistics(pair string, totalTrades int, winRate, expectedValue float64) {
	m.StatisticsRecomputed.Inc()
	label := pairLabel(pair)
	m.StatisticsTotalTrades.WithLabelValues(label).Set(float64(totalTrades))
	m.StatisticsWinRate.WithLabelValues(label).Set(winRate)
	m.StatisticsEV.WithLabelValues(label).Set(expectedValue)
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, d time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
