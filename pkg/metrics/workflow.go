package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "grainhub"

// WorkflowMetrics tracks approval decisions and ledger health.
type WorkflowMetrics struct {
	decisions       *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	integrityFaults *prometheus.CounterVec
	requests        *prometheus.CounterVec
}

// NewWorkflowMetrics registers the workflow collectors. A nil registerer yields
// a no-op recorder.
func NewWorkflowMetrics(reg prometheus.Registerer) *WorkflowMetrics {
	if reg == nil {
		return &WorkflowMetrics{}
	}
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "approval_decisions_total",
		Help:      "Approval actions by transaction type, role, action and outcome.",
	}, []string{"type", "role", "action", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "approval_action_duration_seconds",
		Help:      "Latency of approval actions including the ledger commit.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"type"})
	integrity := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_integrity_faults_total",
		Help:      "Ledger mutations refused because a counter would go negative.",
	}, []string{"type"})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transaction_requests_total",
		Help:      "Grain transactions created by type and initial status.",
	}, []string{"type", "status"})
	reg.MustRegister(decisions, duration, integrity, requests)
	return &WorkflowMetrics{
		decisions:       decisions,
		duration:        duration,
		integrityFaults: integrity,
		requests:        requests,
	}
}

// ObserveDecision records one approval action and its latency.
func (m *WorkflowMetrics) ObserveDecision(txType, role, action, outcome string, started time.Time) {
	if m == nil {
		return
	}
	if m.decisions != nil {
		m.decisions.WithLabelValues(normalizeLabel(txType), normalizeLabel(role), normalizeLabel(action), normalizeLabel(outcome)).Inc()
	}
	if m.duration != nil {
		m.duration.WithLabelValues(normalizeLabel(txType)).Observe(time.Since(started).Seconds())
	}
}

// IncIntegrityFault counts a refused ledger mutation.
func (m *WorkflowMetrics) IncIntegrityFault(txType string) {
	if m == nil || m.integrityFaults == nil {
		return
	}
	m.integrityFaults.WithLabelValues(normalizeLabel(txType)).Inc()
}

// IncRequest counts a created transaction.
func (m *WorkflowMetrics) IncRequest(txType, status string) {
	if m == nil || m.requests == nil {
		return
	}
	m.requests.WithLabelValues(normalizeLabel(txType), normalizeLabel(status)).Inc()
}
