package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cdreetz/crebAI/tasks"
)

// ListFilter narrows and pages List results. Filtering, ordering by
// created_at descending, and pagination apply in that order.
type ListFilter struct {
	Status *tasks.Status
	Limit  int
	Skip   int
}

// TaskStore owns the canonical task records. Execution units and callers
// never mutate records directly; every transition goes through the store,
// which is the single serialization point preventing lost updates.
type TaskStore interface {
	// Create allocates a fresh task with status pending and returns it.
	Create(ctx context.Context, taskType string, params json.RawMessage) (*tasks.Task, error)

	// Get returns a snapshot copy of the record, or a not-found error.
	Get(ctx context.Context, id string) (*tasks.Task, error)

	// UpdateStatus transitions the record's status. A non-nil result is only
	// meaningful for terminal statuses and stamps completed_at exactly once.
	UpdateStatus(ctx context.Context, id string, status tasks.Status, result *tasks.Result) error

	// Claim atomically moves a pending task to processing. It fails when the
	// task is unknown or no longer pending, which prevents double dispatch.
	Claim(ctx context.Context, id string) error

	// List returns snapshot copies filtered, ordered and paged per filter.
	List(ctx context.Context, filter ListFilter) ([]*tasks.Task, error)

	// EvictOlderThan removes every record created more than maxAge ago,
	// along with any stored result, and returns the number removed.
	EvictOlderThan(ctx context.Context, maxAge time.Duration) (int, error)
}
