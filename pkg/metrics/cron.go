package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// CronMetrics tracks scheduled job runs. A nil value records nothing.
type CronMetrics struct {
	runs        *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
}

func NewCronMetrics(reg prometheus.Registerer) *CronMetrics {
	if reg == nil {
		return nil
	}
	m := &CronMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carrental_cron_runs_total",
			Help: "Cron job runs by job and outcome.",
		}, []string{"job", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "carrental_cron_run_seconds",
			Help:    "Wall time of a single cron job run.",
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "carrental_cron_last_success_timestamp_seconds",
			Help: "Unix time of the latest successful run per job.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.runs, m.latency, m.lastSuccess)
	return m
}

// ObserveRun records one finished run; a non-nil err marks it failed.
func (m *CronMetrics) ObserveRun(job string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	job = normalizeLabel(job)
	m.latency.WithLabelValues(job).Observe(elapsed.Seconds())
	if err != nil {
		m.runs.WithLabelValues(job, OutcomeFailed).Inc()
		return
	}
	m.runs.WithLabelValues(job, OutcomeSucceeded).Inc()
	m.lastSuccess.WithLabelValues(job).SetToCurrentTime()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
