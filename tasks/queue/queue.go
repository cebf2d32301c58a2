package queue

import (
	"context"
	"errors"
)

// ErrQueueFull is returned by bounded queues when an enqueue would block.
// Submission does not fail on it; the dispatcher's sweep picks the task up
// from the store on the next cycle.
var ErrQueueFull = errors.New("task queue is full")

// ErrQueueClosed is returned once a queue has been shut down.
var ErrQueueClosed = errors.New("task queue is closed")

// TaskQueue carries task IDs from submission to the dispatch loop.
// The store remains the canonical record; the queue is only a wake-up path
// that removes poll latency from the submit-to-dispatch hop.
type TaskQueue interface {
	// Enqueue adds a task ID to the queue.
	Enqueue(ctx context.Context, taskID string) error

	// Dequeue removes and returns the next task ID, blocking until one is
	// available, the context is cancelled, or the queue is closed.
	Dequeue(ctx context.Context) (string, error)

	// Depth returns the number of task IDs waiting in the queue.
	Depth(ctx context.Context) (int64, error)

	// Close cleanly shuts down the queue.
	Close() error
}
