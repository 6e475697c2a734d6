package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulerMetrics instruments the background sweep scheduler.
type SchedulerMetrics struct {
	JobRunsTotal *prometheus.CounterVec
	JobDuration  *prometheus.HistogramVec
	JobLastRun   *prometheus.GaugeVec
}

var (
	schedulerOnce     sync.Once
	schedulerInstance *SchedulerMetrics
)

// Scheduler returns the process-wide scheduler metrics.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

// SchedulerWithConfig returns the process-wide scheduler metrics. The config
// is applied only on first call.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerOnce.Do(func() {
		schedulerInstance = newSchedulerMetrics(cfg)
	})
	return schedulerInstance
}

func newSchedulerMetrics(cfg Config) *SchedulerMetrics {
	labels := constLabels(cfg)

	m := &SchedulerMetrics{
		JobRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "disburse_scheduler_job_runs_total",
			Help:        "Scheduler job executions, partitioned by job and outcome.",
			ConstLabels: labels,
		}, []string{"job", "status"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "disburse_scheduler_job_duration_seconds",
			Help:        "Wall-clock duration of scheduler job executions.",
			ConstLabels: labels,
			Buckets:     []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"job"}),
		JobLastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "disburse_scheduler_job_last_run_timestamp_seconds",
			Help:        "Unix timestamp of the last completed run per job.",
			ConstLabels: labels,
		}, []string{"job"}),
	}

	mustRegister(m.JobRunsTotal, m.JobDuration, m.JobLastRun)

	return m
}

// ResetSchedulerMetricsForTest clears the singleton so the next call
// recreates instruments against the current registerer.
func ResetSchedulerMetricsForTest() {
	schedulerOnce = sync.Once{}
	schedulerInstance = nil
}
