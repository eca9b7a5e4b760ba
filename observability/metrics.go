// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for the dispatch pipeline. Every method is safe on a nil receiver
// so callers can leave instrumentation unconfigured.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "herald"

// Metrics holds the pipeline's metric instruments.
type Metrics struct {
	DispatchesTotal   *prometheus.CounterVec
	AttemptsTotal     *prometheus.CounterVec
	AttemptLatency    prometheus.Histogram
	RetriesScheduled  prometheus.Counter
	DeadLetters       prometheus.Counter
	BroadcastsTotal   prometheus.Counter
	BroadcastFanout   prometheus.Histogram
	BroadcastsRunning prometheus.Gauge
	LedgerErrors      prometheus.Counter
}

// NewMetrics creates the instruments and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DispatchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Dispatch outcomes by status (delivered, retry_scheduled, dead_letter).",
		}, []string{"status"}),
		AttemptsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_attempts_total",
			Help:      "HTTP delivery attempts by result class.",
		}, []string{"result"}),
		AttemptLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_attempt_duration_seconds",
			Help:      "Wall-clock duration of delivery HTTP calls.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		RetriesScheduled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_scheduled_total",
			Help:      "Failed attempts that scheduled a follow-up attempt.",
		}),
		DeadLetters: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_letters_total",
			Help:      "Delivery chains that exhausted their attempts.",
		}),
		BroadcastsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Events broadcast to an organization.",
		}),
		BroadcastFanout: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "broadcast_fanout",
			Help:      "Number of endpoints matched per broadcast.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
		BroadcastsRunning: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broadcast_tasks_running",
			Help:      "Detached dispatch tasks currently in flight.",
		}),
		LedgerErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_write_errors_total",
			Help:      "Delivery ledger writes that failed.",
		}),
	}
}

// RecordAttempt records one HTTP attempt.
func (m *Metrics) RecordAttempt(success bool, latencySeconds float64) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.AttemptsTotal.WithLabelValues(result).Inc()
	m.AttemptLatency.Observe(latencySeconds)
}

// RecordDispatch records the outcome of one dispatch call.
func (m *Metrics) RecordDispatch(status string) {
	if m == nil {
		return
	}
	m.DispatchesTotal.WithLabelValues(status).Inc()
	switch status {
	case "retry_scheduled":
		m.RetriesScheduled.Inc()
	case "dead_letter":
		m.DeadLetters.Inc()
	}
}

// RecordBroadcast records a broadcast and the number of endpoints it reached.
func (m *Metrics) RecordBroadcast(endpoints int) {
	if m == nil {
		return
	}
	m.BroadcastsTotal.Inc()
	m.BroadcastFanout.Observe(float64(endpoints))
}

// TaskStarted and TaskDone track detached dispatch tasks.
func (m *Metrics) TaskStarted() {
	if m != nil {
		m.BroadcastsRunning.Inc()
	}
}

// TaskDone marks a detached dispatch task as finished.
func (m *Metrics) TaskDone() {
	if m != nil {
		m.BroadcastsRunning.Dec()
	}
}

// RecordLedgerError counts a failed ledger write.
func (m *Metrics) RecordLedgerError() {
	if m != nil {
		m.LedgerErrors.Inc()
	}
}
