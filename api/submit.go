package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cdreetz/crebAI/errors"
	"github.com/cdreetz/crebAI/llm"
	"github.com/cdreetz/crebAI/logger"
	"github.com/cdreetz/crebAI/tasks"
	"github.com/cdreetz/crebAI/tasks/handlers"
)

// TaskSubmitter accepts new tasks for asynchronous execution.
type TaskSubmitter interface {
	Submit(ctx context.Context, taskType string, params json.RawMessage) (*tasks.Task, error)
}

// SubmitResponse defines the JSON response returned after accepting a task.
type SubmitResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// generateRequest is the payload for text generation submissions.
type generateRequest struct {
	Prompt    string     `json:"prompt"`
	ModelName string     `json:"model_name,omitempty"`
	Params    llm.Params `json:"params,omitempty"`
}

// chatRequest is the payload for chat completion submissions.
type chatRequest struct {
	Messages  []llm.Message `json:"messages"`
	ModelName string        `json:"model_name,omitempty"`
	Params    llm.Params    `json:"params,omitempty"`
}

// NewGenerateHandler returns an HTTP handler that accepts text generation
// tasks. Submission is asynchronous: the response carries the task ID and
// the caller polls the task endpoint for the result.
func NewGenerateHandler(submitter TaskSubmitter, lg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondWithError(w, errors.NewValidationError("method not allowed"), lg)
			return
		}

		var req generateRequest
		if err := decodeBody(w, r, &req); err != nil {
			respondWithError(w, err, lg)
			return
		}

		if req.Prompt == "" {
			respondWithError(w, errors.NewValidationError("prompt is required"), lg)
			return
		}
		if len(req.Prompt) > maxPromptSize {
			respondWithError(w, errors.NewValidationError("prompt too large", map[string]any{
				"max_size_bytes":    maxPromptSize,
				"actual_size_bytes": len(req.Prompt),
			}), lg)
			return
		}

		submitTask(w, r, submitter, handlers.TypeTextGeneration, req, lg)
	}
}

// NewChatHandler returns an HTTP handler that accepts chat completion tasks.
func NewChatHandler(submitter TaskSubmitter, lg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondWithError(w, errors.NewValidationError("method not allowed"), lg)
			return
		}

		var req chatRequest
		if err := decodeBody(w, r, &req); err != nil {
			respondWithError(w, err, lg)
			return
		}

		if len(req.Messages) == 0 {
			respondWithError(w, errors.NewValidationError("messages are required"), lg)
			return
		}

		submitTask(w, r, submitter, handlers.TypeChatCompletion, req, lg)
	}
}

// submitTask marshals the validated request into task params and submits it.
func submitTask(w http.ResponseWriter, r *http.Request, submitter TaskSubmitter, taskType string, req any, lg *logger.Logger) {
	params, err := json.Marshal(req)
	if err != nil {
		respondWithError(w, errors.NewInternalError("failed to encode task params"), lg)
		return
	}

	task, err := submitter.Submit(r.Context(), taskType, params)
	if err != nil {
		respondWithError(w, err, lg)
		return
	}

	respondJSON(w, http.StatusAccepted, SubmitResponse{
		TaskID: task.ID,
		Status: string(task.Status),
	}, lg)
}
