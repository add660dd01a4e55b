package routes_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/invoice-auth/internal/infra/config"
	"github.com/arklim/invoice-auth/internal/transport/http/middleware"
	httproutes "github.com/arklim/invoice-auth/internal/transport/http/routes"
)

type pinger func(context.Context) error

func (p pinger) Ping(ctx context.Context) error        { return p(ctx) }
func (p pinger) HealthCheck(ctx context.Context) error { return p(ctx) }

func newRouter(t *testing.T, db, cache pinger) (*gin.Engine, *prometheus.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := prometheus.NewRegistry()
	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: registry})
	require.NoError(t, err)

	deps := httproutes.Dependencies{
		Config:   &config.AppConfig{App: config.AppSettings{Env: "test"}},
		Logger:   zaptest.NewLogger(t),
		Metrics:  metrics,
		Gatherer: registry,
	}
	if db != nil {
		deps.Database = db
	}
	if cache != nil {
		deps.Cache = cache
	}
	return httproutes.Register(deps), registry
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := newRouter(t, nil, nil)

	rr := get(r, "/healthz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestReadinessEndpoint(t *testing.T) {
	healthy := pinger(func(context.Context) error { return nil })
	down := pinger(func(context.Context) error { return errors.New("dial tcp: refused") })

	r, _ := newRouter(t, healthy, healthy)
	assert.Equal(t, http.StatusOK, get(r, "/readyz").Code)

	r, _ = newRouter(t, healthy, down)
	rr := get(r, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), `"redis":"unavailable"`)
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	r, _ := newRouter(t, nil, nil)

	get(r, "/healthz")
	rr := get(r, "/metrics")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), `invoices_http_requests_total{method="GET",route="/healthz",status="200"} 1`), rr.Body.String())
}

func TestUnknownRoute(t *testing.T) {
	r, _ := newRouter(t, nil, nil)

	assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/auth/login").Code)
}
