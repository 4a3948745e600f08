package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObservabilityCountsRequestsByStatus(t *testing.T) {
	obs := NewObservability(ObservabilityConfig{MetricsPrefix: "test_http", Enabled: true}, nil)
	handler := obs.Middleware("confirm_claim")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.WriteHeader(http.StatusOK)
	}))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/confirm-claim", nil))
	require.Equal(t, http.StatusForbidden, res.Code)
	require.Equal(t, float64(1), testutil.ToFloat64(obs.requests.WithLabelValues("confirm_claim", http.MethodPost, "403")))

	metrics := httptest.NewRecorder()
	obs.MetricsHandler().ServeHTTP(metrics, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, metrics.Code)
	require.True(t, strings.Contains(metrics.Body.String(), `test_http_requests_total{method="POST",route="confirm_claim",status="403"} 1`))
}

func TestObservabilityDisabledPassesThrough(t *testing.T) {
	obs := NewObservability(ObservabilityConfig{MetricsPrefix: "test_http_off"}, nil)
	handler := obs.Middleware("health")(okHandler())

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, 0, testutil.CollectAndCount(obs.requests))
}
