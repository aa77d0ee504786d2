package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cron run outcomes.
const (
	CronOutcomeSuccess = "success"
	CronOutcomeFailure = "failure"
	CronOutcomeTimeout = "timeout"
	CronOutcomeSkipped = "skipped"
)

// CronJobMetrics tracks the ledger maintenance jobs run by the cron worker.
type CronJobMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
}

// NewCronJobMetrics registers the cron collectors on reg. A nil registerer
// yields a collector that records nothing.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wildroots_cron_job_runs_total",
			Help: "Cron job runs by outcome (success, failure, timeout, skipped).",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wildroots_cron_job_duration_seconds",
			Help:    "Wall time of cron jobs that actually ran.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wildroots_cron_job_last_success_timestamp_seconds",
			Help: "Unix time of each job's last successful run.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.runs, m.duration, m.lastSuccess)
	return m
}

// ObserveRun records one attempt. Skipped runs carry no duration.
func (m *CronJobMetrics) ObserveRun(job, outcome string, duration time.Duration, at time.Time) {
	if m == nil || m.runs == nil {
		return
	}
	job = normalizeLabel(job)
	m.runs.WithLabelValues(job, outcome).Inc()
	if outcome == CronOutcomeSkipped {
		return
	}
	m.duration.WithLabelValues(job).Observe(duration.Seconds())
	if outcome == CronOutcomeSuccess {
		m.lastSuccess.WithLabelValues(job).Set(float64(at.Unix()))
	}
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
