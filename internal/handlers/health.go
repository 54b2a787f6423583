package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is anything whose connectivity can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthResponse struct {
	Status     string                 `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Service    string                 `json:"service"`
	Components map[string]interface{} `json:"components"`
}

type HealthHandler struct {
	redis     Pinger
	narrative NarrativeSource
	logger    *slog.Logger
}

// NewHealthHandler creates the health handler. redis may be nil when the
// theater runs with the in-process queue.
func NewHealthHandler(redis Pinger, narrative NarrativeSource, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		redis:     redis,
		narrative: narrative,
		logger:    logger,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("Health check requested",
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr)

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := make(map[string]interface{})
	overallStatus := "healthy"

	if h.redis == nil {
		components["queue"] = "memory"
	} else if err := h.redis.Ping(ctx); err != nil {
		h.logger.Warn("Redis health check failed", "error", err)
		components["queue"] = "unhealthy"
		overallStatus = "degraded"
	} else {
		components["queue"] = "healthy"
	}

	// An unsynced narrative keeps serving, so it degrades nothing but is
	// worth surfacing.
	if h.narrative != nil {
		if h.narrative.Unsynced() {
			components["narrative_state"] = "unsynced"
		} else {
			components["narrative_state"] = "synced"
		}
	}

	response := HealthResponse{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Service:    "quantum-theater",
		Components: components,
	}

	statusCode := http.StatusOK
	if overallStatus != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, response, h.logger)
}
