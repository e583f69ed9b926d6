package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/bfc-vpn/mfa-core/internal/handler"
)

type mockDB struct {
	err error
}

func (m *mockDB) HealthCheck(ctx context.Context) error {
	return m.err
}

type mockRedis struct {
	err error
}

func (m *mockRedis) Ping(ctx context.Context) error {
	return m.err
}

type mockRecorderHealth struct {
	healthy bool
	lastErr error
}

func (m *mockRecorderHealth) Healthy() bool {
	return m.healthy
}

func (m *mockRecorderHealth) LastError() error {
	return m.lastErr
}

func healthRequest(h *handler.HealthHandler, path string) *httptest.ResponseRecorder {
	router := gin.New()
	router.GET("/health", h.Shallow)
	router.GET("/health/ready", h.Ready)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthShallow(t *testing.T) {
	h := handler.NewHealthHandler(nil, nil, nil)
	w := healthRequest(h, "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.Contains(t, w.Body.String(), `"timestamp"`)
}

func TestHealthReady_AllHealthy(t *testing.T) {
	h := handler.NewHealthHandler(&mockDB{}, &mockRedis{}, &mockRecorderHealth{healthy: true})
	w := healthRequest(h, "/health/ready")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestHealthReady_DatabaseUnhealthy(t *testing.T) {
	h := handler.NewHealthHandler(
		&mockDB{err: errors.New("database connection failed")},
		&mockRedis{},
		&mockRecorderHealth{healthy: true},
	)
	w := healthRequest(h, "/health/ready")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "database connection failed")
}

func TestHealthReady_RecorderUnhealthy(t *testing.T) {
	h := handler.NewHealthHandler(
		&mockDB{},
		&mockRedis{},
		&mockRecorderHealth{healthy: false, lastErr: errors.New("flush failed")},
	)
	w := healthRequest(h, "/health/ready")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "flush failed")
	assert.Contains(t, w.Body.String(), `"event_recorder"`)
}
