package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cdreetz/crebAI/errors"
	"github.com/cdreetz/crebAI/logger"
	"github.com/cdreetz/crebAI/tasks"
	"github.com/cdreetz/crebAI/tasks/store"
)

const defaultListLimit = 20

// TaskResponse is the external view of a task record.
type TaskResponse struct {
	TaskID      string          `json:"task_id"`
	Type        string          `json:"type"`
	Status      string          `json:"status"`
	Params      json.RawMessage `json:"params"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Result      *tasks.Result   `json:"result,omitempty"`
}

// TaskListResponse wraps a page of task records.
type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
	Count int            `json:"count"`
}

func toTaskResponse(task *tasks.Task) TaskResponse {
	return TaskResponse{
		TaskID:      task.ID,
		Type:        task.Type,
		Status:      string(task.Status),
		Params:      task.Params,
		CreatedAt:   task.CreatedAt,
		CompletedAt: task.CompletedAt,
		Result:      task.Result,
	}
}

// NewTaskStatusHandler creates a handler for single-task status queries.
func NewTaskStatusHandler(taskStore store.TaskStore, lg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			respondWithError(w, errors.NewValidationError("method not allowed"), lg)
			return
		}

		// Path shape: /api/v1/tasks/{id}
		taskID := strings.TrimPrefix(r.URL.Path, "/api/v1/tasks/")
		if taskID == "" || strings.Contains(taskID, "/") {
			respondWithError(w, errors.NewValidationError("task ID is required"), lg)
			return
		}

		task, err := taskStore.Get(r.Context(), taskID)
		if err != nil {
			respondWithError(w, err, lg)
			return
		}

		respondJSON(w, http.StatusOK, toTaskResponse(task), lg)
	}
}

// NewTaskListHandler creates a handler for paginated task listings.
// Supported query parameters: status, limit, skip.
func NewTaskListHandler(taskStore store.TaskStore, lg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			respondWithError(w, errors.NewValidationError("method not allowed"), lg)
			return
		}

		filter := store.ListFilter{Limit: defaultListLimit}

		if raw := r.URL.Query().Get("status"); raw != "" {
			status := tasks.Status(raw)
			switch status {
			case tasks.StatusPending, tasks.StatusProcessing, tasks.StatusCompleted, tasks.StatusFailed:
				filter.Status = &status
			default:
				respondWithError(w, errors.NewValidationError("invalid status filter", map[string]any{
					"status": raw,
				}), lg)
				return
			}
		}

		var err error
		if filter.Limit, err = queryInt(r, "limit", defaultListLimit); err != nil {
			respondWithError(w, err, lg)
			return
		}
		if filter.Skip, err = queryInt(r, "skip", 0); err != nil {
			respondWithError(w, err, lg)
			return
		}

		records, err := taskStore.List(r.Context(), filter)
		if err != nil {
			respondWithError(w, err, lg)
			return
		}

		resp := TaskListResponse{
			Tasks: make([]TaskResponse, 0, len(records)),
			Count: len(records),
		}
		for _, task := range records {
			resp.Tasks = append(resp.Tasks, toTaskResponse(task))
		}

		respondJSON(w, http.StatusOK, resp, lg)
	}
}

func queryInt(r *http.Request, key string, defaultValue int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, errors.NewValidationError("invalid query parameter", map[string]any{
			"param": key,
			"value": raw,
		})
	}
	return value, nil
}
