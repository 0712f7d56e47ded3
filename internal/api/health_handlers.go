package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthChecker defines the interface for components that can be health checked.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandlers provides health and readiness check endpoints for probes.
type HealthHandlers struct {
	dbChecker        HealthChecker
	redisChecker     HealthChecker
	natsChecker      HealthChecker
	hydrationChecker HealthChecker
}

// HealthHandlersConfig configures the health check handlers. Any nil
// checker is reported as ok (not configured).
type HealthHandlersConfig struct {
	DBChecker        HealthChecker
	RedisChecker     HealthChecker
	NATSChecker      HealthChecker
	HydrationChecker HealthChecker
}

// NewHealthHandlers creates a new health check handler.
func NewHealthHandlers(config HealthHandlersConfig) *HealthHandlers {
	return &HealthHandlers{
		dbChecker:        config.DBChecker,
		redisChecker:     config.RedisChecker,
		natsChecker:      config.NATSChecker,
		hydrationChecker: config.HydrationChecker,
	}
}

// HealthResponse represents the JSON response for health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles GET /health (liveness probe).
// Returns 200 if the process is running and can serve requests.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": "ok"},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	WriteJSON(w, http.StatusOK, response)
}

// Ready handles GET /ready (readiness probe).
// Checks the durable store, ranking cache, and event stream; returns 503
// when the store or stream is unavailable. A degraded cache degrades reads
// but does not block readiness of the write path, so it is reported without
// failing the probe. The hydration backend is purely best-effort.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	healthy := true

	if h.dbChecker != nil {
		if err := h.dbChecker.HealthCheck(ctx); err != nil {
			checks["database"] = "error"
			healthy = false
			slog.WarnContext(ctx, "database health check failed", "error", err)
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "ok"
	}

	if h.natsChecker != nil {
		if err := h.natsChecker.HealthCheck(ctx); err != nil {
			checks["nats"] = "error"
			healthy = false
			slog.WarnContext(ctx, "nats health check failed", "error", err)
		} else {
			checks["nats"] = "ok"
		}
	} else {
		checks["nats"] = "ok"
	}

	if h.redisChecker != nil {
		if err := h.redisChecker.HealthCheck(ctx); err != nil {
			checks["redis"] = "degraded"
			slog.WarnContext(ctx, "redis health check failed", "error", err)
		} else {
			checks["redis"] = "ok"
		}
	} else {
		checks["redis"] = "ok"
	}

	if h.hydrationChecker != nil {
		if err := h.hydrationChecker.HealthCheck(ctx); err != nil {
			checks["hydration"] = "degraded"
			slog.WarnContext(ctx, "hydration health check failed", "error", err)
		} else {
			checks["hydration"] = "ok"
		}
	} else {
		checks["hydration"] = "ok"
	}

	checks["metrics"] = "ok"

	status := "healthy"
	statusCode := http.StatusOK
	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	WriteJSON(w, statusCode, HealthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
