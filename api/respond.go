package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/cdreetz/crebAI/errors"
	"github.com/cdreetz/crebAI/logger"
)

const (
	maxBodySize   = 1024 * 1024 // 1 MB
	maxPromptSize = 1024 * 100  // 100 KB
)

// errorResponse defines the JSON structure for error responses
type errorResponse struct {
	Error   string         `json:"error"`
	Type    string         `json:"type,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// respondWithError sends a structured error response
func respondWithError(w http.ResponseWriter, err error, lg *logger.Logger) {
	taskErr, ok := errors.IsTaskError(err)
	if !ok {
		taskErr = errors.NewInternalError(err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(taskErr.Code)

	errorResp := errorResponse{
		Error:   taskErr.Message,
		Type:    string(taskErr.Type),
		Details: taskErr.Details,
	}

	lg.Error("HTTP error response", map[string]any{
		"error_type":    string(taskErr.Type),
		"error_message": taskErr.Message,
		"status_code":   taskErr.Code,
	})

	// Headers are already written; an encode failure here means the
	// connection is broken and there is nothing left to recover.
	_ = json.NewEncoder(w).Encode(errorResp)
}

// respondJSON writes a JSON body with the given status code.
func respondJSON(w http.ResponseWriter, status int, body any, lg *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		lg.Error("failed to encode response", map[string]any{
			"error": err.Error(),
		})
	}
}

// decodeBody decodes a size-limited JSON request body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			return errors.NewValidationError("request body too large", map[string]any{
				"max_size_bytes": maxBodySize,
			})
		}
		return errors.NewValidationError("invalid JSON payload", map[string]any{
			"error": err.Error(),
		})
	}
	return nil
}
