package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics tracks reconciliation outcomes and consistency health.
type LedgerMetrics struct {
	settlements   *prometheus.CounterVec
	discrepancies *prometheus.CounterVec
	driftProjects prometheus.Gauge
	driftCents    prometheus.Counter
	published     *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wildroots_settlement_events_total",
		Help: "Processor settlement events by type and reconciliation outcome.",
	}, []string{"event_type", "outcome"})
	discrepancies := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wildroots_ledger_discrepancies_total",
		Help: "Ledger discrepancies recorded for manual reconciliation.",
	}, []string{"kind"})
	driftProjects := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wildroots_funding_drift_projects",
		Help: "Projects whose cached funding disagreed with the ledger on the last consistency run.",
	})
	driftCents := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wildroots_funding_drift_cents_total",
		Help: "Absolute funding drift observed across consistency runs, in cents.",
	})
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wildroots_outbox_publish_total",
		Help: "Outbox publish attempts by event type and result.",
	}, []string{"event_type", "result"})
	reg.MustRegister(settlements, discrepancies, driftProjects, driftCents, published)
	return &LedgerMetrics{
		settlements:   settlements,
		discrepancies: discrepancies,
		driftProjects: driftProjects,
		driftCents:    driftCents,
		published:     published,
	}
}

// ObserveSettlement counts one reconciled settlement event.
func (m *LedgerMetrics) ObserveSettlement(eventType, outcome string) {
	if m == nil || m.settlements == nil {
		return
	}
	m.settlements.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// IncDiscrepancy counts a recorded discrepancy.
func (m *LedgerMetrics) IncDiscrepancy(kind string) {
	if m == nil || m.discrepancies == nil {
		return
	}
	m.discrepancies.WithLabelValues(normalizeLabel(kind)).Inc()
}

// SetDriftProjects records how many projects drifted in the latest run.
func (m *LedgerMetrics) SetDriftProjects(n int) {
	if m == nil || m.driftProjects == nil {
		return
	}
	m.driftProjects.Set(float64(n))
}

// AddDriftCents accumulates the absolute size of an observed drift.
func (m *LedgerMetrics) AddDriftCents(cents int64) {
	if m == nil || m.driftCents == nil {
		return
	}
	if cents < 0 {
		cents = -cents
	}
	m.driftCents.Add(float64(cents))
}

// ObservePublish counts an outbox publish attempt.
func (m *LedgerMetrics) ObservePublish(eventType, result string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(eventType), normalizeLabel(result)).Inc()
}
