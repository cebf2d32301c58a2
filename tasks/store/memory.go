package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cdreetz/crebAI/errors"
	"github.com/cdreetz/crebAI/tasks"
)

// Compile-time check to ensure MemoryTaskStore implements TaskStore interface
var _ TaskStore = (*MemoryTaskStore)(nil)

// MemoryTaskStore provides an in-memory implementation of the task store.
// All map access happens under one mutex so concurrent create/update/list
// calls observe a consistent snapshot. The lock is never held across calls
// into backend capabilities; this store does no I/O.
type MemoryTaskStore struct {
	mu    sync.Mutex
	tasks map[string]*tasks.Task

	// now is injectable for eviction tests.
	now func() time.Time
}

// NewMemoryTaskStore creates and initializes a new MemoryTaskStore.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{
		tasks: make(map[string]*tasks.Task),
		now:   time.Now,
	}
}

// SetNowFunc overrides the store clock, used by eviction tests.
func (s *MemoryTaskStore) SetNowFunc(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Create allocates a fresh pending task and inserts it.
// IDs are uuid-generated and never reused, so collisions are not expected;
// one is treated as an internal error rather than an overwrite.
func (s *MemoryTaskStore) Create(ctx context.Context, taskType string, params json.RawMessage) (*tasks.Task, error) {
	task := tasks.NewTask(taskType, params)

	s.mu.Lock()
	defer s.mu.Unlock()

	task.CreatedAt = s.now()

	if _, exists := s.tasks[task.ID]; exists {
		return nil, errors.NewInternalError(fmt.Sprintf("task ID collision: %s", task.ID))
	}

	s.tasks[task.ID] = task
	return task.Clone(), nil
}

// Get retrieves a task by its ID.
// It returns a copy of the task to prevent external callers from
// unintentionally modifying the state of the record stored within the map.
func (s *MemoryTaskStore) Get(ctx context.Context, id string) (*tasks.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, errors.NewNotFoundError(fmt.Sprintf("task %s not found", id))
	}

	return task.Clone(), nil
}

// UpdateStatus transitions a record's status under the store lock.
// A supplied result is stored and completed_at stamped exactly once.
func (s *MemoryTaskStore) UpdateStatus(ctx context.Context, id string, status tasks.Status, result *tasks.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return errors.NewNotFoundError(fmt.Sprintf("task %s not found", id))
	}

	if err := task.SetStatus(status); err != nil {
		return err
	}

	if result != nil {
		task.Result = result
		if task.CompletedAt == nil {
			completedAt := s.now()
			task.CompletedAt = &completedAt
		}
	}

	return nil
}

// Claim moves a pending task to processing in one critical section so the
// same task can never be dispatched twice.
func (s *MemoryTaskStore) Claim(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return errors.NewNotFoundError(fmt.Sprintf("task %s not found", id))
	}

	if task.Status != tasks.StatusPending {
		return fmt.Errorf("task %s is %s, not pending", id, task.Status)
	}

	return task.SetStatus(tasks.StatusProcessing)
}

// List returns snapshot copies, optionally filtered by status, ordered by
// created_at descending (most recent first), then sliced by skip/limit.
func (s *MemoryTaskStore) List(ctx context.Context, filter ListFilter) ([]*tasks.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]*tasks.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		if filter.Status != nil && task.Status != *filter.Status {
			continue
		}
		matched = append(matched, task)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Skip > 0 {
		if filter.Skip >= len(matched) {
			return []*tasks.Task{}, nil
		}
		matched = matched[filter.Skip:]
	}

	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}

	result := make([]*tasks.Task, len(matched))
	for i, task := range matched {
		result[i] = task.Clone()
	}

	return result, nil
}

// EvictOlderThan removes every record whose age exceeds maxAge and returns
// the number removed. Records mid-processing are not exempt; reclamation is
// deliberately decoupled from execution.
func (s *MemoryTaskStore) EvictOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxAge)

	removed := 0
	for id, task := range s.tasks {
		if task.CreatedAt.Before(cutoff) {
			delete(s.tasks, id)
			removed++
		}
	}

	return removed, nil
}
