package api

import (
	"net/http"
	"time"

	"github.com/cdreetz/crebAI/config"
	"github.com/cdreetz/crebAI/errors"
	"github.com/cdreetz/crebAI/logger"
	"github.com/cdreetz/crebAI/tasks/registry"
)

var startTime = time.Now()

// HealthResponse provides detailed health information
type HealthResponse struct {
	Status          string   `json:"status"`
	Timestamp       string   `json:"timestamp"`
	Uptime          string   `json:"uptime"`
	RegisteredTasks []string `json:"registered_tasks"`
	Version         string   `json:"version,omitempty"`
}

// NewHealthHandler returns a health check handler
func NewHealthHandler(cfg *config.Config, handlerRegistry *registry.HandlerRegistry, lg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			respondWithError(w, errors.NewValidationError("method not allowed"), lg)
			return
		}

		respondJSON(w, http.StatusOK, HealthResponse{
			Status:          "healthy",
			Timestamp:       time.Now().UTC().Format(time.RFC3339),
			Uptime:          time.Since(startTime).String(),
			RegisteredTasks: handlerRegistry.GetRegisteredTypes(),
			Version:         cfg.Version,
		}, lg)
	}
}
