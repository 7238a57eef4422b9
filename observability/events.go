package observability

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"rewardvault/core/events"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking emitted ledger events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of committed ledger events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

// RecordEvent increments the counter for the supplied event type.
func (m *eventMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.emitted.WithLabelValues(orUnknown(eventType)).Inc()
}

// LogEmitter writes every event to a structured logger and counts it.
type LogEmitter struct {
	Logger *slog.Logger
}

// Emit implements events.Emitter.
func (e LogEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	Events().RecordEvent(evt.EventType())
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	keys := make([]string, 0, len(payload.Attributes))
	for key := range payload.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)+1)
	args = append(args, slog.String("component", "events"))
	for _, key := range keys {
		args = append(args, slog.String(key, payload.Attributes[key]))
	}
	logger.Info(payload.Type, args...)
}
