package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	redisinfra "github.com/aryan0dhankhar/tenantauth/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/tenantauth/pkg/database"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db          *database.ConnectionPool
	redisClient *redisinfra.Client
	logger      *slog.Logger
}

// NewHealthHandler creates a new health handler. redisClient may be nil
// when lockout counters live in process.
func NewHealthHandler(db *database.ConnectionPool, redisClient *redisinfra.Client, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &HealthHandler{
		db:          db,
		redisClient: redisClient,
		logger:      logger,
	}
}

// HealthResponse represents the health status response
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health handles GET /healthz - Simple liveness check
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Ready handles GET /readyz
// Returns 200 only if the database and, when configured, Redis answer
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	healthy := true

	if h.db == nil {
		checks["database"] = "not configured"
		healthy = false
	} else if err := h.db.Health(ctx); err != nil {
		checks["database"] = "error: " + err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if h.redisClient == nil {
		checks["redis"] = "not configured"
	} else if err := h.redisClient.Ping(ctx); err != nil {
		checks["redis"] = "error: " + err.Error()
		healthy = false
	} else {
		checks["redis"] = "ok"
	}

	status := "ready"
	statusCode := http.StatusOK
	if !healthy {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, ReadinessResponse{Status: status, Checks: checks})

	h.logger.Debug("readiness check",
		slog.String("status", status),
		slog.String("database", checks["database"]),
		slog.String("redis", checks["redis"]),
	)
}
