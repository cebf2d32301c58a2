package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of an inference task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether a task in this status can never transition again.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsActive reports whether the task is currently being executed.
func (s Status) IsActive() bool {
	return s == StatusProcessing
}

// canTransitionTo enforces the forward-only state machine:
// pending -> processing -> completed | failed.
func (s Status) canTransitionTo(target Status) error {
	validTransitions := map[Status][]Status{
		StatusPending:    {StatusProcessing, StatusFailed},
		StatusProcessing: {StatusCompleted, StatusFailed},
		StatusCompleted:  {}, // terminal
		StatusFailed:     {}, // terminal
	}

	allowed, exists := validTransitions[s]
	if !exists {
		return fmt.Errorf("unknown current status: %s", s)
	}

	for _, validTarget := range allowed {
		if target == validTarget {
			return nil
		}
	}

	return fmt.Errorf("invalid transition from %s to %s", s, target)
}

// ErrorInfo is the structured error payload stored on failed tasks.
type ErrorInfo struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

// Result holds the terminal outcome of a task: either the backend output
// or a structured error, never both.
type Result struct {
	Output json.RawMessage `json:"output,omitempty"`
	Error  *ErrorInfo      `json:"error,omitempty"`
}

// Task is the unit of deferred inference work tracked from submission
// to terminal outcome.
type Task struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Status Status `json:"status"`
	// Backend-specific arguments, copied at creation and never mutated.
	// Decoding is delayed until the handler for Type is known.
	Params      json.RawMessage `json:"params"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Result      *Result         `json:"result,omitempty"`
}

// NewTask creates a pending task with a fresh unique ID.
func NewTask(taskType string, params json.RawMessage) *Task {
	return &Task{
		ID:        uuid.New().String(),
		Type:      taskType,
		Status:    StatusPending,
		Params:    append(json.RawMessage(nil), params...),
		CreatedAt: time.Now(),
	}
}

// SetStatus transitions the task, validating the state machine.
// The status is left unchanged when the transition is invalid.
func (t *Task) SetStatus(target Status) error {
	if err := t.Status.canTransitionTo(target); err != nil {
		return fmt.Errorf("task %s: %w", t.ID, err)
	}
	t.Status = target
	return nil
}

// Clone returns a deep enough copy for handing snapshots to callers:
// the record fields are copied, shared slices are not re-aliased for writes
// anywhere in this codebase.
func (t *Task) Clone() *Task {
	copied := *t
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		copied.CompletedAt = &at
	}
	if t.Result != nil {
		res := *t.Result
		if t.Result.Error != nil {
			errInfo := *t.Result.Error
			res.Error = &errInfo
		}
		copied.Result = &res
	}
	return &copied
}
