package metrics

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics instruments the public API surface.
type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

var (
	httpOnce     sync.Once
	httpInstance *HTTPMetrics
)

// HTTP returns the process-wide HTTP metrics, creating them with default
// labels on first use.
func HTTP() *HTTPMetrics {
	return HTTPWithConfig(Config{})
}

// HTTPWithConfig returns the process-wide HTTP metrics. The config is
// applied only on first call.
func HTTPWithConfig(cfg Config) *HTTPMetrics {
	httpOnce.Do(func() {
		httpInstance = newHTTPMetrics(cfg)
	})
	return httpInstance
}

func newHTTPMetrics(cfg Config) *HTTPMetrics {
	labels := constLabels(cfg)

	m := &HTTPMetrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "disburse_http_requests_total",
			Help:        "HTTP requests served, partitioned by method, route and status.",
			ConstLabels: labels,
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "disburse_http_request_duration_seconds",
			Help:        "Wall-clock duration of HTTP request handling.",
			ConstLabels: labels,
			Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route"}),
	}

	mustRegister(m.RequestsTotal, m.RequestDuration)

	return m
}

// GinMiddleware records per-request counters and latency on the given
// instruments. Unmatched routes collapse into a single label value so the
// cardinality stays bounded.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// ResetHTTPMetricsForTest clears the singleton so the next call recreates
// instruments against the current registerer.
func ResetHTTPMetricsForTest() {
	httpOnce = sync.Once{}
	httpInstance = nil
}
