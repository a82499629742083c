package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestCronMetricsObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronMetrics(reg)

	m.ObserveRun("pending-card-reconcile", 300*time.Millisecond, nil)
	m.ObserveRun("pending-card-reconcile", 100*time.Millisecond, errors.New("stripe down"))
	m.ObserveRun("pending-card-reconcile", 100*time.Millisecond, nil)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	ok, err := findSeries(mfs, "carrental_cron_runs_total", map[string]string{"job": "pending-card-reconcile", "outcome": OutcomeSucceeded})
	require.NoError(t, err)
	require.Equal(t, 2.0, ok.GetCounter().GetValue())

	failed, err := findSeries(mfs, "carrental_cron_runs_total", map[string]string{"job": "pending-card-reconcile", "outcome": OutcomeFailed})
	require.NoError(t, err)
	require.Equal(t, 1.0, failed.GetCounter().GetValue())

	sum, err := fetchHistogramSum(mfs, "carrental_cron_run_seconds", "job", "pending-card-reconcile")
	require.NoError(t, err)
	require.InDelta(t, 0.5, sum, 0.001)

	last, err := findSeries(mfs, "carrental_cron_last_success_timestamp_seconds", map[string]string{"job": "pending-card-reconcile"})
	require.NoError(t, err)
	require.Greater(t, last.GetGauge().GetValue(), 0.0)
}

func TestCronMetricsFailureLeavesLastSuccessUnset(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCronMetrics(reg).ObserveRun("", time.Second, errors.New("boom"))

	mfs, err := reg.Gather()
	require.NoError(t, err)

	_, err = findSeries(mfs, "carrental_cron_runs_total", map[string]string{"job": "unknown", "outcome": OutcomeFailed})
	require.NoError(t, err)
	_, err = findSeries(mfs, "carrental_cron_last_success_timestamp_seconds", map[string]string{"job": "unknown"})
	require.Error(t, err)
}

func TestCronMetricsUnregisteredIsNoop(t *testing.T) {
	m := NewCronMetrics(nil)
	require.Nil(t, m)
	m.ObserveRun("job", time.Second, nil)
}
