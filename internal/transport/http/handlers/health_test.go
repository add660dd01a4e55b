package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, handler gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/probe", handler)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/probe", nil))
	return rr
}

func TestStatus(t *testing.T) {
	rr := serve(t, NewHealthHandler().Status)

	require.Equal(t, http.StatusOK, rr.Code)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.False(t, body.StartedAt.IsZero())
}

func TestReadinessAllHealthy(t *testing.T) {
	ok := func(context.Context) error { return nil }
	h := NewHealthHandler(WithReadinessCheck("database", ok), WithReadinessCheck("redis", ok))

	rr := serve(t, h.Readiness)

	require.Equal(t, http.StatusOK, rr.Code)
	var body ReadinessResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ready", body.Status)
	assert.Equal(t, map[string]string{"database": "ok", "redis": "ok"}, body.Checks)
}

func TestReadinessReportsFailingDependency(t *testing.T) {
	h := NewHealthHandler(
		WithReadinessCheck("database", func(context.Context) error { return nil }),
		WithReadinessCheck("redis", func(context.Context) error { return errors.New("connection refused") }),
		WithReadinessCheck("", nil),
	)

	rr := serve(t, h.Readiness)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var body ReadinessResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "not_ready", body.Status)
	assert.Equal(t, "unavailable", body.Checks["redis"])
	assert.NotContains(t, rr.Body.String(), "connection refused")
}
