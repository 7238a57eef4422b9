package observability

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rewardvault"

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record HTTP
// API activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by route and outcome.",
			}, []string{"module", "route", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by route and status code.",
			}, []string{"module", "route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "route"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a request. The status code should be the
// HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	module = orUnknown(module)
	route = orUnknown(route)
	outcome := "success"
	if status >= 400 {
		outcome = "error"
		m.errors.WithLabelValues(module, route, strconv.Itoa(status)).Inc()
	}
	m.requests.WithLabelValues(module, route, outcome).Inc()
	m.latency.WithLabelValues(module, route).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit" so dashboards remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(orUnknown(module), reason).Inc()
}

// LedgerMetrics tracks the reward ledger operations.
type LedgerMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	failures   *prometheus.CounterVec
	vaultHeld  *prometheus.GaugeVec
	amounts    *prometheus.CounterVec
	replays    prometheus.Counter
	paused     prometheus.Gauge
}

// Ledger exposes the metrics registry for the reward ledger host.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Ledger operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for ledger operations including lock wait.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "failures_total",
				Help:      "Failed ledger operations segmented by error code.",
			}, []string{"operation", "code"}),
			vaultHeld: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "vault_held",
				Help:      "Amount currently held in custody per pool vault.",
			}, []string{"pool"}),
			amounts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "amount_total",
				Help:      "Cumulative amount moved by deposits and claims.",
			}, []string{"operation"}),
			replays: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "replays_rejected_total",
				Help:      "Signed requests rejected because their nonce was already used.",
			}),
			paused: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "paused",
				Help:      "Set to 1 while the ledger rejects mutations.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.operations,
			ledgerRegistry.latency,
			ledgerRegistry.failures,
			ledgerRegistry.vaultHeld,
			ledgerRegistry.amounts,
			ledgerRegistry.replays,
			ledgerRegistry.paused,
		)
	})
	return ledgerRegistry
}

// Observe records one ledger operation. code is empty on success.
func (m *LedgerMetrics) Observe(operation, code string, amount uint64, duration time.Duration) {
	if m == nil {
		return
	}
	operation = orUnknown(operation)
	outcome := "success"
	if code != "" {
		outcome = "error"
		m.failures.WithLabelValues(operation, code).Inc()
	} else if amount > 0 {
		m.amounts.WithLabelValues(operation).Add(float64(amount))
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetVaultHeld publishes the custody total of a pool vault.
func (m *LedgerMetrics) SetVaultHeld(pool string, held uint64) {
	if m == nil {
		return
	}
	m.vaultHeld.WithLabelValues(orUnknown(pool)).Set(float64(held))
}

// RecordReplay counts a rejected replayed request.
func (m *LedgerMetrics) RecordReplay() {
	if m == nil {
		return
	}
	m.replays.Inc()
}

// SetPaused toggles the pause gauge.
func (m *LedgerMetrics) SetPaused(paused bool) {
	if m == nil {
		return
	}
	if paused {
		m.paused.Set(1)
		return
	}
	m.paused.Set(0)
}

func orUnknown(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
