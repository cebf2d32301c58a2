package errors

import (
	"fmt"
	"net/http"
)

// TaskErrorType categorizes different kinds of task and inference failures
type TaskErrorType string

const (
	ValidationError         TaskErrorType = "validation"
	NotFoundError           TaskErrorType = "not_found"
	UnsupportedTypeError    TaskErrorType = "unsupported_type"
	BackendError            TaskErrorType = "backend"
	StreamingUnsupportedErr TaskErrorType = "streaming_unsupported"
	InternalError           TaskErrorType = "internal"
)

// TaskError provides structured error information with HTTP status suggestions
type TaskError struct {
	Type    TaskErrorType  `json:"type"`
	Message string         `json:"message"`
	Code    int            `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Constructor functions for common error types
func NewValidationError(message string, details ...map[string]any) *TaskError {
	var d map[string]any
	if len(details) > 0 {
		d = details[0]
	}
	return &TaskError{
		Type:    ValidationError,
		Message: message,
		Code:    http.StatusBadRequest,
		Details: d,
	}
}

func NewNotFoundError(message string) *TaskError {
	return &TaskError{
		Type:    NotFoundError,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

// NewUnsupportedTypeError marks a task whose type has no registered handler.
// These are recorded as failed tasks, never surfaced as dispatcher crashes.
func NewUnsupportedTypeError(message string) *TaskError {
	return &TaskError{
		Type:    UnsupportedTypeError,
		Message: message,
		Code:    http.StatusUnprocessableEntity,
	}
}

// NewBackendError wraps any failure coming out of an inference capability.
func NewBackendError(message string, details ...map[string]any) *TaskError {
	var d map[string]any
	if len(details) > 0 {
		d = details[0]
	}
	return &TaskError{
		Type:    BackendError,
		Message: message,
		Code:    http.StatusBadGateway,
		Details: d,
	}
}

// NewStreamingUnsupportedError signals that a model has no streaming capability.
func NewStreamingUnsupportedError(message string) *TaskError {
	return &TaskError{
		Type:    StreamingUnsupportedErr,
		Message: message,
		Code:    http.StatusNotImplemented,
	}
}

func NewInternalError(message string) *TaskError {
	return &TaskError{
		Type:    InternalError,
		Message: message,
		Code:    http.StatusInternalServerError,
	}
}

// IsTaskError checks if an error is a TaskError and returns it
func IsTaskError(err error) (*TaskError, bool) {
	if taskErr, ok := err.(*TaskError); ok {
		return taskErr, true
	}
	return nil, false
}

// Kind maps an arbitrary error to the result error kind recorded on a failed
// task. Unclassified errors are treated as backend failures since the only
// unguarded calls in an execution unit are calls into the inference capability.
func Kind(err error) TaskErrorType {
	if taskErr, ok := IsTaskError(err); ok {
		return taskErr.Type
	}
	return BackendError
}
