package queue

import (
	"context"
	"sync"
)

var _ TaskQueue = (*ChannelTaskQueue)(nil)

// ChannelTaskQueue is the default in-process queue: a bounded channel with
// multiple producers (submit handlers) and a single consumer (the dispatch
// loop). Enqueue never blocks; a full queue returns ErrQueueFull.
type ChannelTaskQueue struct {
	ch chan string

	mu     sync.Mutex
	closed bool
}

// NewChannelTaskQueue creates a bounded in-memory queue with the given capacity.
func NewChannelTaskQueue(capacity int) *ChannelTaskQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &ChannelTaskQueue{
		ch: make(chan string, capacity),
	}
}

func (q *ChannelTaskQueue) Enqueue(ctx context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.ch <- taskID:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *ChannelTaskQueue) Dequeue(ctx context.Context) (string, error) {
	select {
	case taskID, ok := <-q.ch:
		if !ok {
			return "", ErrQueueClosed
		}
		return taskID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (q *ChannelTaskQueue) Depth(ctx context.Context) (int64, error) {
	return int64(len(q.ch)), nil
}

func (q *ChannelTaskQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	return nil
}
