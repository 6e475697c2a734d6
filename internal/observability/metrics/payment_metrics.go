package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics instruments the payment queue and its workers.
type PaymentMetrics struct {
	JobsTotal            *prometheus.CounterVec
	JobRetriesTotal      *prometheus.CounterVec
	JobDuration          *prometheus.HistogramVec
	QueueDepth           *prometheus.GaugeVec
	CompensationFailures prometheus.Counter
}

var (
	paymentOnce     sync.Once
	paymentInstance *PaymentMetrics
)

// Payment returns the process-wide payment metrics, creating them with
// default labels on first use.
func Payment() *PaymentMetrics {
	return PaymentWithConfig(Config{})
}

// PaymentWithConfig returns the process-wide payment metrics. The config is
// applied only on first call.
func PaymentWithConfig(cfg Config) *PaymentMetrics {
	paymentOnce.Do(func() {
		paymentInstance = newPaymentMetrics(cfg)
	})
	return paymentInstance
}

func newPaymentMetrics(cfg Config) *PaymentMetrics {
	labels := constLabels(cfg)

	m := &PaymentMetrics{
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "disburse_payment_jobs_total",
			Help:        "Payment jobs processed, partitioned by provider and outcome.",
			ConstLabels: labels,
		}, []string{"provider", "status"}),
		JobRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "disburse_payment_job_retries_total",
			Help:        "Payment jobs re-enqueued after a retryable failure.",
			ConstLabels: labels,
		}, []string{"provider"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "disburse_payment_job_duration_seconds",
			Help:        "Wall-clock duration of payment job execution.",
			ConstLabels: labels,
			Buckets:     []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"provider"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "disburse_payment_queue_depth",
			Help:        "Jobs currently waiting in each provider queue.",
			ConstLabels: labels,
		}, []string{"provider"}),
		CompensationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "disburse_reissue_compensation_failures_total",
			Help:        "Reissue flows where blocking the old wallet failed and operator action is required.",
			ConstLabels: labels,
		}),
	}

	mustRegister(
		m.JobsTotal,
		m.JobRetriesTotal,
		m.JobDuration,
		m.QueueDepth,
		m.CompensationFailures,
	)

	return m
}

// ResetPaymentMetricsForTest clears the singleton so the next call recreates
// instruments against the current registerer.
func ResetPaymentMetricsForTest() {
	paymentOnce = sync.Once{}
	paymentInstance = nil
}
