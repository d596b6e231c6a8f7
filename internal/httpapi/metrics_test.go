package httpapi

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerServesPrometheusExposition(t *testing.T) {
	resp, err := MetricsHandler(&Request{Method: MethodGet, Path: "/metrics"}, nil)
	require.NoError(t, err)
	require.Equal(t, 200, resp.Status.Code)
	require.Contains(t, resp.ContentType, "text/plain")
}

func TestRequestMetricsObserveRecordsCounts(t *testing.T) {
	m := newRequestMetrics(nil)
	m.observe("GET", "/repos/x/pulls", 200, time.Now())
	m.observe("GET", "/repos/x/pulls", 500, time.Now())

	require.Equal(t, float64(1), testutil.ToFloat64(m.requestErrors.WithLabelValues("GET", "/repos/x/pulls", "500")))
	require.Equal(t, float64(2), testutil.ToFloat64(m.requestTotal.WithLabelValues("GET", "/repos/x/pulls", "2xx"))+testutil.ToFloat64(m.requestTotal.WithLabelValues("GET", "/repos/x/pulls", "5xx")))
}
