package handlers

import (
	"context"
	"encoding/json"

	"github.com/cdreetz/crebAI/tasks"
)

// Task type names accepted by the submit endpoints and resolved by the
// dispatch loop.
const (
	TypeTextGeneration = "text_generation"
	TypeChatCompletion = "chat_completion"
)

// TaskHandler is the execution routine for one task type. It decodes the
// task's params, invokes the matching backend capability, and returns the
// JSON result payload stored on the completed task.
//
// Handlers never write to the task store themselves; the execution unit
// records the outcome.
type TaskHandler interface {
	Run(ctx context.Context, task *tasks.Task) (json.RawMessage, error)
}
