package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cron run outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	// OutcomeSkipped is a cycle that lost the lock to another worker.
	OutcomeSkipped = "skipped"
)

// CronJobMetrics lets alerting tell a stalled sweep or payout from a failing one.
type CronJobMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return nil
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rentwise_cron_job_runs_total",
			Help: "Cron job cycles by outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "rentwise_cron_job_duration_seconds",
			Help: "Wall time of cron jobs that held the lock.",
			// the sweep finishes in seconds, a large payout batch in minutes
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rentwise_cron_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.runs, m.duration, m.lastSuccess)
	return m
}

// Skipped counts a cycle that never ran because the lock was held elsewhere.
func (m *CronJobMetrics) Skipped(job string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(job), OutcomeSkipped).Inc()
}

// Finished records a run that held the lock. err decides the outcome.
func (m *CronJobMetrics) Finished(job string, took time.Duration, err error) {
	if m == nil {
		return
	}
	job = normalizeLabel(job)
	m.duration.WithLabelValues(job).Observe(took.Seconds())
	if err != nil {
		m.runs.WithLabelValues(job, OutcomeFailure).Inc()
		return
	}
	m.runs.WithLabelValues(job, OutcomeSuccess).Inc()
	m.lastSuccess.WithLabelValues(job).SetToCurrentTime()
}

// LockFailed counts a cycle aborted because Redis could not be reached.
func (m *CronJobMetrics) LockFailed(job string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(job), OutcomeFailure).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
