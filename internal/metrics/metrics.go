// Package metrics exposes Prometheus instrumentation for the bounty lifecycle.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	operations    *prometheus.CounterVec
	escrows       *prometheus.CounterVec
	ledgerLatency *prometheus.HistogramVec
	ledgerRetries *prometheus.CounterVec
	oracleChecks  *prometheus.CounterVec
	reconEvents   *prometheus.CounterVec
	requests      *prometheus.HistogramVec
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Metrics
)

// Default returns the lazily-initialised metrics registered on the global registerer
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultRegistry = New(prometheus.DefaultRegisterer)
	})
	return defaultRegistry
}

// New builds the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bountyflow",
			Subsystem: "bounty",
			Name:      "operations_total",
			Help:      "Bounty lifecycle operations segmented by operation and outcome.",
		}, []string{"operation", "outcome"}),
		escrows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bountyflow",
			Subsystem: "escrow",
			Name:      "transfers_total",
			Help:      "Per-contribution escrow results segmented by phase and outcome.",
		}, []string{"phase", "outcome"}),
		ledgerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bountyflow",
			Subsystem: "ledger",
			Name:      "request_duration_seconds",
			Help:      "Latency of ledger calls segmented by method and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "outcome"}),
		ledgerRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bountyflow",
			Subsystem: "ledger",
			Name:      "retries_total",
			Help:      "Ledger calls retried after a transient failure.",
		}, []string{"method"}),
		oracleChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bountyflow",
			Subsystem: "oracle",
			Name:      "checks_total",
			Help:      "Evidence oracle verdicts.",
		}, []string{"outcome"}),
		reconEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bountyflow",
			Subsystem: "recon",
			Name:      "events_total",
			Help:      "Reconciliation anomalies segmented by type.",
		}, []string{"type"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bountyflow",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Latency of API requests segmented by transport, route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"transport", "route", "code"}),
	}
	reg.MustRegister(
		m.operations,
		m.escrows,
		m.ledgerLatency,
		m.ledgerRetries,
		m.oracleChecks,
		m.reconEvents,
		m.requests,
	)
	return m
}

// Outcome labels an error as ok or error
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveOperation counts a finished lifecycle operation
func (m *Metrics) ObserveOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, Outcome(err)).Inc()
}

// ObserveEscrow counts one per-contribution escrow result
func (m *Metrics) ObserveEscrow(phase, outcome string) {
	if m == nil {
		return
	}
	m.escrows.WithLabelValues(phase, outcome).Inc()
}

// ObserveLedgerCall records the latency of one ledger call
func (m *Metrics) ObserveLedgerCall(method string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.ledgerLatency.WithLabelValues(method, Outcome(err)).Observe(time.Since(started).Seconds())
}

// IncLedgerRetry counts a retried ledger call
func (m *Metrics) IncLedgerRetry(method string) {
	if m == nil {
		return
	}
	m.ledgerRetries.WithLabelValues(method).Inc()
}

// ObserveOracleCheck counts an oracle verdict: approved, rejected or error
func (m *Metrics) ObserveOracleCheck(outcome string) {
	if m == nil {
		return
	}
	m.oracleChecks.WithLabelValues(outcome).Inc()
}

// IncReconEvent counts a reconciliation anomaly
func (m *Metrics) IncReconEvent(anomalyType string) {
	if m == nil {
		return
	}
	m.reconEvents.WithLabelValues(anomalyType).Inc()
}

// ObserveRequest records one served API request
func (m *Metrics) ObserveRequest(transport, route, code string, started time.Time) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(transport, route, code).Observe(time.Since(started).Seconds())
}
