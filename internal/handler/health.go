package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/thrumwood/thrumwood/internal/database"
)

// HealthResponse represents the response for health endpoints
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HandleHealthz provides a basic liveness check.
func HandleHealthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
	}
}

// HandleReadyz reports readiness: the store behind the engine must be
// reachable before traffic is admitted.
func HandleReadyz(dbPool database.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := dbPool.Ping(ctx); err != nil {
			slog.Error("Readiness check failed", "error", err)
			respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
				Status:  "unavailable",
				Message: "database connection failed",
			})
			return
		}
		respondJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
	}
}

// nopPool satisfies database.Pool when dev mode runs without postgres.
type nopPool struct{}

func (nopPool) Ping(ctx context.Context) error { return nil }
func (nopPool) Close()                         {}

// NopPool returns an always-ready pool for in-memory dev mode.
func NopPool() database.Pool { return nopPool{} }
