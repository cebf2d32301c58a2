package api

import (
	"net/http"
	"strings"

	"github.com/cdreetz/crebAI/errors"
	"github.com/cdreetz/crebAI/llm"
	"github.com/cdreetz/crebAI/logger"
)

// ModelListResponse wraps the registered models.
type ModelListResponse struct {
	Models []llm.ModelInfo `json:"models"`
}

// UnloadResponse reports the outcome of a model unload.
type UnloadResponse struct {
	Name     string `json:"name"`
	Unloaded bool   `json:"unloaded"`
}

// NewModelListHandler returns a handler that lists registered models and
// their load state.
func NewModelListHandler(models *llm.Registry, lg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			respondWithError(w, errors.NewValidationError("method not allowed"), lg)
			return
		}

		respondJSON(w, http.StatusOK, ModelListResponse{Models: models.List()}, lg)
	}
}

// NewModelActionHandler returns a handler for per-model actions:
// POST /api/v1/models/{name}/load and POST /api/v1/models/{name}/unload.
func NewModelActionHandler(models *llm.Registry, lg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondWithError(w, errors.NewValidationError("method not allowed"), lg)
			return
		}

		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/models/")
		name, action, found := strings.Cut(rest, "/")
		if !found || name == "" {
			respondWithError(w, errors.NewValidationError("invalid URL format"), lg)
			return
		}

		switch action {
		case "load":
			model, err := models.GetOrLoad(r.Context(), name)
			if err != nil {
				respondWithError(w, err, lg)
				return
			}
			// Load is idempotent; a second call reports the cached state.
			result, err := model.Load(r.Context())
			if err != nil {
				respondWithError(w, errors.NewBackendError(err.Error()), lg)
				return
			}
			respondJSON(w, http.StatusOK, result, lg)

		case "unload":
			model, ok := models.Get(name)
			if !ok {
				respondWithError(w, errors.NewNotFoundError("model "+name+" not found"), lg)
				return
			}
			respondJSON(w, http.StatusOK, UnloadResponse{
				Name:     name,
				Unloaded: model.Unload(),
			}, lg)

		default:
			respondWithError(w, errors.NewValidationError("unknown model action", map[string]any{
				"action": action,
			}), lg)
		}
	}
}
