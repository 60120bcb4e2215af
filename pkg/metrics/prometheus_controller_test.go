package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/stretchr/testify/require"
)

var testCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "campfin",
	Subsystem: "test",
	Name:      "probe_total",
	Help:      "Counter registered by the metrics tests.",
})

func TestRouter_ServesMetricsAndHealth(t *testing.T) {
	testCounter.Inc()
	r := NewRouter("")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, DefaultPath, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "campfin_test_probe_total 1")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, DefaultPath, nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestNewPrometheusController_DefaultPath(t *testing.T) {
	require.Equal(t, "/metrics", NewPrometheusController("").Key())
	require.Equal(t, "/debug/prometheus", NewPrometheusController("/debug/prometheus").Key())
}
