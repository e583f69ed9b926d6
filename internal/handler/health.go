package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker is satisfied by repository.DB.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Pinger is satisfied by the Redis client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RecorderHealth is satisfied by the security event recorder.
type RecorderHealth interface {
	Healthy() bool
	LastError() error
}

type HealthHandler struct {
	db       HealthChecker
	redis    Pinger
	recorder RecorderHealth
}

func NewHealthHandler(db HealthChecker, redis Pinger, recorder RecorderHealth) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, recorder: recorder}
}

func (h *HealthHandler) Shallow(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]gin.H)
	allHealthy := true

	// Database check
	start := time.Now()
	if err := h.db.HealthCheck(ctx); err != nil {
		checks["database"] = gin.H{"status": "unhealthy", "error": err.Error()}
		allHealthy = false
	} else {
		checks["database"] = gin.H{"status": "ok", "latency_ms": time.Since(start).Milliseconds()}
	}

	// Redis check
	start = time.Now()
	if err := h.redis.Ping(ctx); err != nil {
		checks["redis"] = gin.H{"status": "unhealthy", "error": err.Error()}
		allHealthy = false
	} else {
		checks["redis"] = gin.H{"status": "ok", "latency_ms": time.Since(start).Milliseconds()}
	}

	// Event recorder: unhealthy after repeated flush failures. A sick
	// recorder means verifications will start failing closed, so the
	// instance should be pulled from rotation.
	if h.recorder.Healthy() {
		checks["event_recorder"] = gin.H{"status": "ok"}
	} else {
		check := gin.H{"status": "unhealthy"}
		if err := h.recorder.LastError(); err != nil {
			check["error"] = err.Error()
		}
		checks["event_recorder"] = check
		allHealthy = false
	}

	status := http.StatusOK
	statusStr := "ok"
	if !allHealthy {
		status = http.StatusServiceUnavailable
		statusStr = "unhealthy"
	}

	c.JSON(status, gin.H{"status": statusStr, "checks": checks})
}
