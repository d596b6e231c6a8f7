package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricsNamespace = "gir"
	metricsSubsystem = "http"
)

// requestMetrics holds the three Prometheus vectors every request is
// recorded against: a total counter, a latency histogram, and an
// error-only counter, labeled by method/path and the status class (the
// error counter by the exact status code instead).
type requestMetrics struct {
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestErrors   *prometheus.CounterVec
}

var (
	defaultRequestMetricsOnce sync.Once
	defaultRequestMetricsInst *requestMetrics
)

// defaultMetrics lazily builds and registers the process-wide metric
// vectors against prometheus.DefaultRegisterer, so a Server built without
// an explicit registry still reports on /metrics.
func defaultMetrics() *requestMetrics {
	defaultRequestMetricsOnce.Do(func() {
		defaultRequestMetricsInst = newRequestMetrics(prometheus.DefaultRegisterer)
	})
	return defaultRequestMetricsInst
}

func newRequestMetrics(reg prometheus.Registerer) *requestMetrics {
	m := &requestMetrics{
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status_class"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status_class"}),
		requestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "errors_total",
			Help:      "Total number of HTTP requests with status >= 400.",
		}, []string{"method", "path", "status_code"}),
	}
	if reg != nil {
		reg.MustRegister(m.requestTotal, m.requestDuration, m.requestErrors)
	}
	return m
}

func (m *requestMetrics) observe(method, path string, status int, start time.Time) {
	if m == nil {
		return
	}
	class := statusClass(status)
	m.requestTotal.WithLabelValues(method, path, class).Inc()
	m.requestDuration.WithLabelValues(method, path, class).Observe(time.Since(start).Seconds())
	if status >= 400 {
		m.requestErrors.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	}
}

// MetricsHandler renders the process-wide Prometheus registry in the
// exposition format, for mounting at GET /metrics. It delegates to
// promhttp.HandlerFor against an in-memory request/recorder pair, since
// this router predates net/http and promhttp only speaks http.Handler.
func MetricsHandler(req *Request, params map[string]string) (*Response, error) {
	h := promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{EnableOpenMetrics: true})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return Text(Status{Code: rec.Code, Message: http.StatusText(rec.Code)}, rec.Header().Get("Content-Type"), rec.Body.Bytes()), nil
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
