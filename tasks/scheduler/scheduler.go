package scheduler

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/cdreetz/crebAI/errors"
	"github.com/cdreetz/crebAI/logger"
	"github.com/cdreetz/crebAI/metrics"
	"github.com/cdreetz/crebAI/tasks"
	"github.com/cdreetz/crebAI/tasks/handlers"
	"github.com/cdreetz/crebAI/tasks/queue"
	"github.com/cdreetz/crebAI/tasks/registry"
	"github.com/cdreetz/crebAI/tasks/store"
)

// Config tunes the scheduler loops.
type Config struct {
	// PollInterval is the sweep cadence for pending tasks that missed the
	// queue wake-up path (e.g. the queue was full at submit time).
	PollInterval time.Duration

	// ErrorBackoff is the extra sleep after an unexpected loop-body error.
	ErrorBackoff time.Duration

	// CleanupInterval is the reclamation loop cadence.
	CleanupInterval time.Duration

	// TaskMaxAge is the record age beyond which reclamation evicts.
	TaskMaxAge time.Duration

	// DrainTimeout bounds how long Stop waits for in-flight execution
	// units. Units still running after the timeout keep going detached.
	DrainTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = time.Second
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Hour
	}
	if c.TaskMaxAge <= 0 {
		c.TaskMaxAge = 48 * time.Hour
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 30 * time.Second
	}
}

// Scheduler owns the dispatch and reclamation loops. Submission writes the
// task into the store and nudges the dispatch loop through the queue; the
// periodic sweep is the fallback for nudges lost to a full queue, so no
// pending task waits longer than one poll interval.
type Scheduler struct {
	store    store.TaskStore
	queue    queue.TaskQueue
	registry *registry.HandlerRegistry
	metrics  *metrics.Metrics
	logger   *logger.Logger
	cfg      Config

	mu       sync.Mutex
	running  bool
	cancelFn context.CancelFunc

	loops    sync.WaitGroup
	inflight sync.WaitGroup
}

// New constructs a scheduler. Zero config fields get sensible defaults.
func New(
	taskStore store.TaskStore,
	taskQueue queue.TaskQueue,
	handlerRegistry *registry.HandlerRegistry,
	m *metrics.Metrics,
	lg *logger.Logger,
	cfg Config,
) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{
		store:    taskStore,
		queue:    taskQueue,
		registry: handlerRegistry,
		metrics:  m,
		logger:   lg,
		cfg:      cfg,
	}
}

// Submit creates a pending task and returns it immediately. The dispatch
// loop picks it up through the queue, or on the next sweep when the queue
// is full.
func (s *Scheduler) Submit(ctx context.Context, taskType string, params json.RawMessage) (*tasks.Task, error) {
	task, err := s.store.Create(ctx, taskType, params)
	if err != nil {
		return nil, err
	}

	s.metrics.TasksSubmitted.WithLabelValues(taskType).Inc()
	s.logger.Task(task.ID, "task submitted", map[string]any{
		"task_type": taskType,
	})

	if err := s.queue.Enqueue(ctx, task.ID); err != nil {
		// Not fatal: the record is pending in the store and the sweep
		// will dispatch it within one poll interval.
		s.logger.Warn("failed to enqueue task, sweep will recover it", map[string]any{
			"task_id": task.ID,
			"error":   err.Error(),
		})
	}

	return task, nil
}

// Start launches the dispatch and reclamation loops. Idempotent while running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancelFn = cancel

	s.loops.Add(2)
	go func() {
		defer s.loops.Done()
		s.dispatchLoop(loopCtx)
	}()
	go func() {
		defer s.loops.Done()
		s.reclamationLoop(loopCtx)
	}()

	s.logger.Info("scheduler started", map[string]any{
		"poll_interval":    s.cfg.PollInterval.String(),
		"cleanup_interval": s.cfg.CleanupInterval.String(),
		"task_max_age":     s.cfg.TaskMaxAge.String(),
	})
}

// Stop cancels the loops and drains in-flight execution units with a
// bounded wait. Units still running at the timeout continue detached to
// their terminal state; their store updates remain valid.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancelFn
	s.cancelFn = nil
	s.mu.Unlock()

	cancel()
	s.loops.Wait()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped, all in-flight tasks drained")
	case <-time.After(s.cfg.DrainTimeout):
		s.logger.Warn("scheduler stopped with in-flight tasks still running", map[string]any{
			"drain_timeout": s.cfg.DrainTimeout.String(),
		})
	}
}

// dispatchLoop claims pending work and starts execution units. It never
// terminates except on explicit stop; loop-body errors are logged and
// followed by a backoff.
func (s *Scheduler) dispatchLoop(ctx context.Context) {
	ready := make(chan string)
	s.loops.Add(1)
	go func() {
		defer s.loops.Done()
		s.queuePump(ctx, ready)
	}()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("dispatch loop stopping")
			return

		case taskID, ok := <-ready:
			if !ok {
				// Queue closed underneath us; sweeping still works.
				ready = nil
				continue
			}
			s.dispatchByID(ctx, taskID)

		case <-ticker.C:
			if err := s.sweepPending(ctx); err != nil {
				s.logger.Error("dispatch sweep failed", map[string]any{
					"error": err.Error(),
				})
				s.backoff(ctx)
			}
		}
	}
}

// queuePump forwards queued task IDs into the dispatch loop.
func (s *Scheduler) queuePump(ctx context.Context, ready chan<- string) {
	defer close(ready)

	for {
		taskID, err := s.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, queue.ErrQueueClosed) {
				return
			}
			s.logger.Error("failed to dequeue task", map[string]any{
				"error": err.Error(),
			})
			s.backoff(ctx)
			continue
		}

		select {
		case ready <- taskID:
		case <-ctx.Done():
			return
		}
	}
}

// sweepPending dispatches every pending record in the store.
func (s *Scheduler) sweepPending(ctx context.Context) error {
	pending := tasks.StatusPending
	records, err := s.store.List(ctx, store.ListFilter{Status: &pending})
	if err != nil {
		return fmt.Errorf("listing pending tasks: %w", err)
	}

	for _, task := range records {
		s.dispatch(ctx, task)
	}
	return nil
}

// dispatchByID resolves a queued ID to its record and dispatches it.
// The record may have been evicted or already swept; both are skips.
func (s *Scheduler) dispatchByID(ctx context.Context, taskID string) {
	task, err := s.store.Get(ctx, taskID)
	if err != nil {
		s.logger.Debug("queued task no longer in store", map[string]any{
			"task_id": taskID,
		})
		return
	}
	if task.Status != tasks.StatusPending {
		return
	}
	s.dispatch(ctx, task)
}

// dispatch claims one pending task and starts its execution unit without
// waiting for completion. Unknown task types are failed immediately and
// never reach a handler.
func (s *Scheduler) dispatch(ctx context.Context, task *tasks.Task) {
	handler, ok := s.registry.Get(task.Type)
	if !ok {
		s.failTask(ctx, task, errors.NewUnsupportedTypeError(
			fmt.Sprintf("unknown task type: %s", task.Type)))
		return
	}

	if err := s.store.Claim(ctx, task.ID); err != nil {
		// Lost the race with another dispatch path, or the record was
		// evicted between listing and claiming.
		s.logger.Debug("task claim skipped", map[string]any{
			"task_id": task.ID,
			"error":   err.Error(),
		})
		return
	}

	s.inflight.Add(1)
	s.metrics.TasksInFlight.Inc()

	// Execution outlives loop cancellation: stopping the scheduler does not
	// abort claimed tasks, it only bounds how long Stop waits for them.
	execCtx := context.WithoutCancel(ctx)
	go s.execute(execCtx, handler, task)
}

// execute is the execution unit: one goroutine per claimed task. Every
// failure is caught and recorded on the task, never propagated.
func (s *Scheduler) execute(ctx context.Context, handler handlers.TaskHandler, task *tasks.Task) {
	defer s.inflight.Done()
	defer s.metrics.TasksInFlight.Dec()

	defer func() {
		if r := recover(); r != nil {
			s.failTask(ctx, task, errors.NewInternalError(
				fmt.Sprintf("task handler panicked: %v", r)))
		}
	}()

	output, err := handler.Run(ctx, task)
	if err != nil {
		s.failTask(ctx, task, err)
		return
	}

	result := &tasks.Result{Output: output}
	if err := s.store.UpdateStatus(ctx, task.ID, tasks.StatusCompleted, result); err != nil {
		s.logger.Error("failed to record task completion", map[string]any{
			"task_id": task.ID,
			"error":   err.Error(),
		})
		return
	}

	s.metrics.TasksCompleted.WithLabelValues(task.Type).Inc()
	s.logger.Task(task.ID, "task completed", map[string]any{
		"task_type": task.Type,
	})
}

// failTask records a terminal failure with its structured error payload.
func (s *Scheduler) failTask(ctx context.Context, task *tasks.Task, cause error) {
	kind := errors.Kind(cause)
	message := cause.Error()
	if taskErr, ok := errors.IsTaskError(cause); ok {
		message = taskErr.Message
	}

	result := &tasks.Result{
		Error: &tasks.ErrorInfo{Message: message, Kind: string(kind)},
	}

	if err := s.store.UpdateStatus(ctx, task.ID, tasks.StatusFailed, result); err != nil {
		s.logger.Error("failed to record task failure", map[string]any{
			"task_id":        task.ID,
			"update_error":   err.Error(),
			"original_error": message,
		})
		return
	}

	s.metrics.TasksFailed.WithLabelValues(task.Type, string(kind)).Inc()
	s.logger.Task(task.ID, "task failed", map[string]any{
		"task_type": task.Type,
		"kind":      string(kind),
		"error":     message,
	})
}

// reclamationLoop periodically evicts task records past the configured age.
func (s *Scheduler) reclamationLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reclamation loop stopping")
			return

		case <-ticker.C:
			removed, err := s.store.EvictOlderThan(ctx, s.cfg.TaskMaxAge)
			if err != nil {
				s.logger.Error("task reclamation failed", map[string]any{
					"error": err.Error(),
				})
				s.backoff(ctx)
				continue
			}
			if removed > 0 {
				s.metrics.TasksEvicted.Add(float64(removed))
				s.logger.Info("evicted old tasks", map[string]any{
					"count":   removed,
					"max_age": s.cfg.TaskMaxAge.String(),
				})
			}
		}
	}
}

// backoff sleeps for the error backoff or until cancellation.
func (s *Scheduler) backoff(ctx context.Context) {
	select {
	case <-time.After(s.cfg.ErrorBackoff):
	case <-ctx.Done():
	}
}
