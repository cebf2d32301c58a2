package tasks

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_String(t *testing.T) {
	testCases := []struct {
		status   Status
		expected string
	}{
		{StatusPending, "pending"},
		{StatusProcessing, "processing"},
		{StatusCompleted, "completed"},
		{StatusFailed, "failed"},
	}

	for _, tc := range testCases {
		t.Run(string(tc.status), func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.status.String())
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	testCases := []struct {
		status   Status
		expected bool
	}{
		{StatusPending, false},
		{StatusProcessing, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}

	for _, tc := range testCases {
		t.Run(string(tc.status), func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.status.IsTerminal())
		})
	}
}

func TestStatus_CanTransitionTo(t *testing.T) {
	testCases := []struct {
		name        string
		from        Status
		to          Status
		shouldError bool
	}{
		// Valid transitions from pending
		{"pending to processing", StatusPending, StatusProcessing, false},
		{"pending to failed", StatusPending, StatusFailed, false},

		// Valid transitions from processing
		{"processing to completed", StatusProcessing, StatusCompleted, false},
		{"processing to failed", StatusProcessing, StatusFailed, false},

		// Invalid transitions from pending
		{"pending to completed", StatusPending, StatusCompleted, true},

		// Invalid transitions from processing
		{"processing to pending", StatusProcessing, StatusPending, true},

		// No transition out of a terminal state
		{"completed to processing", StatusCompleted, StatusProcessing, true},
		{"completed to failed", StatusCompleted, StatusFailed, true},
		{"failed to processing", StatusFailed, StatusProcessing, true},
		{"failed to completed", StatusFailed, StatusCompleted, true},

		// Self-transitions (should fail)
		{"pending to pending", StatusPending, StatusPending, true},
		{"processing to processing", StatusProcessing, StatusProcessing, true},
		{"completed to completed", StatusCompleted, StatusCompleted, true},
		{"failed to failed", StatusFailed, StatusFailed, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.from.canTransitionTo(tc.to)
			if tc.shouldError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid transition")
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestStatus_CanTransitionTo_InvalidStatus(t *testing.T) {
	invalidStatus := Status("invalid")
	err := invalidStatus.canTransitionTo(StatusProcessing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown current status")
}

func TestNewTask(t *testing.T) {
	taskType := "text_generation"
	params := json.RawMessage(`{"prompt":"hello"}`)

	task := NewTask(taskType, params)

	require.NotNil(t, task)
	assert.Equal(t, taskType, task.Type)
	assert.Equal(t, params, task.Params)
	assert.Equal(t, StatusPending, task.Status)
	assert.Nil(t, task.Result)
	assert.Nil(t, task.CompletedAt)
	assert.False(t, task.CreatedAt.IsZero())
	assert.NotEmpty(t, task.ID)

	// Verify ID is a valid UUID format (36 characters with dashes)
	assert.Len(t, task.ID, 36)
	assert.Contains(t, task.ID, "-")
}

func TestNewTask_GeneratesUniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		task := NewTask("text_generation", json.RawMessage(`{}`))
		assert.False(t, seen[task.ID], "Each task should have a unique ID")
		seen[task.ID] = true
	}
}

func TestNewTask_CopiesParams(t *testing.T) {
	params := json.RawMessage(`{"prompt":"hello"}`)
	task := NewTask("text_generation", params)

	// Mutating the caller's buffer must not leak into the task record.
	params[2] = 'X'
	assert.Equal(t, json.RawMessage(`{"prompt":"hello"}`), task.Params)
}

func TestTask_SetStatus(t *testing.T) {
	task := NewTask("text_generation", json.RawMessage(`{}`))

	// Valid transition: pending -> processing
	err := task.SetStatus(StatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, task.Status)

	// Invalid transition: processing -> pending
	err = task.SetStatus(StatusPending)
	require.Error(t, err)
	assert.Contains(t, err.Error(), task.ID)
	assert.Contains(t, err.Error(), "invalid transition")
	assert.Equal(t, StatusProcessing, task.Status) // Status unchanged
}

func TestTask_WorkflowScenarios(t *testing.T) {
	t.Run("happy path: pending -> processing -> completed", func(t *testing.T) {
		task := NewTask("chat_completion", json.RawMessage(`{"messages":[]}`))

		require.NoError(t, task.SetStatus(StatusProcessing))
		assert.False(t, task.Status.IsTerminal())
		assert.True(t, task.Status.IsActive())

		require.NoError(t, task.SetStatus(StatusCompleted))
		assert.True(t, task.Status.IsTerminal())
	})

	t.Run("failure path: pending -> processing -> failed", func(t *testing.T) {
		task := NewTask("chat_completion", json.RawMessage(`{"messages":[]}`))

		require.NoError(t, task.SetStatus(StatusProcessing))
		require.NoError(t, task.SetStatus(StatusFailed))
		assert.True(t, task.Status.IsTerminal())

		// No second terminal transition.
		require.Error(t, task.SetStatus(StatusCompleted))
		assert.Equal(t, StatusFailed, task.Status)
	})

	t.Run("unsupported type: pending -> failed without processing", func(t *testing.T) {
		task := NewTask("nonexistent", json.RawMessage(`{}`))

		require.NoError(t, task.SetStatus(StatusFailed))
		assert.True(t, task.Status.IsTerminal())
	})
}

func TestTask_Clone(t *testing.T) {
	task := NewTask("text_generation", json.RawMessage(`{"prompt":"hi"}`))
	require.NoError(t, task.SetStatus(StatusProcessing))
	require.NoError(t, task.SetStatus(StatusFailed))
	task.Result = &Result{Error: &ErrorInfo{Message: "boom", Kind: "backend"}}

	clone := task.Clone()
	require.NotNil(t, clone)
	assert.Equal(t, task.ID, clone.ID)
	assert.Equal(t, task.Status, clone.Status)
	require.NotNil(t, clone.Result)

	// Mutating the clone must not touch the original record.
	clone.Result.Error.Message = "changed"
	clone.Status = StatusCompleted
	assert.Equal(t, "boom", task.Result.Error.Message)
	assert.Equal(t, StatusFailed, task.Status)
}
