package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics tracks API requests by route pattern, never raw path.
type HTTPMetrics struct {
	requests *prometheus.HistogramVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		return &HTTPMetrics{}
	}
	requests := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "carrental_http_request_duration_seconds",
		Help:    "API request latency by method, route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
	reg.MustRegister(requests)
	return &HTTPMetrics{requests: requests}
}

func (h *HTTPMetrics) Observe(method, route string, status int, duration time.Duration) {
	if h == nil || h.requests == nil {
		return
	}
	h.requests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}
