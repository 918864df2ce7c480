package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// WorkerRepository is the storage side of task processing.
type WorkerRepository interface {
	// ClaimTask locks the next ready task of the given queues for workerID
	// and returns ErrNoTaskToClaim when there is none.
	ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error)
	CompleteTask(ctx context.Context, taskID uuid.UUID) error
	// FailTask records errorMsg and counts the attempt. The task is
	// rescheduled while retries remain and marked failed afterwards.
	FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error
	MoveToDLQ(ctx context.Context, taskID uuid.UUID) error
	ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error
}

// Worker runs registered handlers for tasks claimed from a repository.
// Each of its pollers processes one task at a time; a poller that found work
// asks again right away and otherwise sleeps for the poll interval.
type Worker struct {
	repo     WorkerRepository
	id       uuid.UUID
	mu       sync.RWMutex
	handlers map[string]Handler
	running  atomic.Bool

	queues          []string
	concurrency     int
	pollInterval    time.Duration
	lockTimeout     time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// WorkerOption configures a Worker. Zero and negative values are ignored.
type WorkerOption func(*Worker)

func WithQueues(queues ...string) WorkerOption {
	return func(w *Worker) {
		if len(queues) > 0 {
			w.queues = queues
		}
	}
}

func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithLockTimeout bounds a single handler run. Locks of running tasks are
// renewed at half this period.
func WithLockTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.lockTimeout = d
		}
	}
}

// WithShutdownTimeout bounds how long Run waits for in-flight tasks after
// its context is canceled.
func WithShutdownTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.shutdownTimeout = d
		}
	}
}

func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithConfig applies the env-loaded Config.
func WithConfig(cfg Config) WorkerOption {
	return func(w *Worker) {
		for _, opt := range []WorkerOption{
			WithQueues(nonEmpty(cfg.Queue)...),
			WithConcurrency(cfg.MaxConcurrentTasks),
			WithPollInterval(cfg.PollInterval),
			WithLockTimeout(cfg.LockTimeout),
			WithShutdownTimeout(cfg.ShutdownTimeout),
		} {
			opt(w)
		}
	}
}

func NewWorker(repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	w := &Worker{
		repo:            repo,
		id:              uuid.New(),
		handlers:        make(map[string]Handler),
		queues:          []string{DefaultQueueName},
		concurrency:     1,
		pollInterval:    5 * time.Second,
		lockTimeout:     5 * time.Minute,
		shutdownTimeout: 30 * time.Second,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(logger.Component("queue.worker"), slog.String("worker_id", w.id.String()))

	return w, nil
}

// ID is the identity recorded in the locks this worker takes.
func (w *Worker) ID() uuid.UUID {
	return w.id
}

// RegisterHandlers adds handlers by name. A later handler replaces an
// earlier one with the same name; nil handlers are skipped.
func (w *Worker) RegisterHandlers(handlers ...Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, h := range handlers {
		if h != nil {
			w.handlers[h.Name()] = h
		}
	}
}

func (w *Worker) handler(name string) (Handler, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	h, ok := w.handlers[name]
	return h, ok
}

// Run returns a function for errgroup that polls until ctx is canceled and
// then waits up to the shutdown timeout for running tasks.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		w.mu.RLock()
		empty := len(w.handlers) == 0
		w.mu.RUnlock()
		if empty {
			return ErrNoHandlers
		}
		if !w.running.CompareAndSwap(false, true) {
			return ErrWorkerStarted
		}
		defer w.running.Store(false)

		w.logger.InfoContext(ctx, "worker started",
			slog.Any("queues", w.queues),
			slog.Int("concurrency", w.concurrency))

		var g errgroup.Group
		for range w.concurrency {
			g.Go(func() error {
				w.poll(ctx)
				return nil
			})
		}

		<-ctx.Done()
		drained := make(chan struct{})
		go func() {
			_ = g.Wait()
			close(drained)
		}()

		select {
		case <-drained:
			w.logger.Info("worker stopped")
			return nil
		case <-time.After(w.shutdownTimeout):
			w.logger.Warn("worker stopped with tasks still running", logger.Duration(w.shutdownTimeout))
			return ErrShutdownTimeout
		}
	}
}

func (w *Worker) poll(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		processed, err := w.ProcessNext(ctx)
		if err != nil && ctx.Err() == nil && !errors.Is(err, ErrHandlerNotFound) {
			w.logger.ErrorContext(ctx, "task processing failed", logger.Error(err))
		}

		if processed {
			timer.Reset(0)
		} else {
			timer.Reset(w.pollInterval)
		}
	}
}

// ProcessNext claims one task and runs it synchronously. It reports false
// when no task was ready. Once a task is claimed, canceling ctx no longer
// interrupts it.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	task, err := w.repo.ClaimTask(ctx, w.id, w.queues, w.lockTimeout)
	switch {
	case errors.Is(err, ErrNoTaskToClaim):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("claim task: %w", err)
	case task == nil:
		return false, nil
	}

	ctx = context.WithoutCancel(ctx)
	log := w.logger.With(
		logger.TaskID(task.ID),
		slog.String("task_name", task.TaskName),
		slog.String("queue", task.Queue))
	log.DebugContext(ctx, "task claimed")

	h, ok := w.handler(task.TaskName)
	if !ok {
		log.ErrorContext(ctx, "no handler registered for task")
		return true, w.deadLetter(ctx, task, "no handler registered for task type: "+task.TaskName, ErrHandlerNotFound)
	}

	start := time.Now()
	runErr := w.execute(ctx, h, task)
	elapsed := time.Since(start)

	if runErr == nil {
		if err := w.repo.CompleteTask(ctx, task.ID); err != nil {
			return true, fmt.Errorf("complete task %s: %w", task.ID, err)
		}
		log.InfoContext(ctx, "task completed", logger.Duration(elapsed))
		return true, nil
	}

	log.ErrorContext(ctx, "task failed",
		slog.Int("attempt", int(task.RetryCount)+1),
		slog.Int("max_retries", int(task.MaxRetries)),
		logger.Duration(elapsed),
		logger.Error(runErr))

	if !task.lastAttempt() {
		if err := w.repo.FailTask(ctx, task.ID, runErr.Error()); err != nil {
			return true, fmt.Errorf("fail task %s: %w", task.ID, err)
		}
		return true, nil
	}

	log.WarnContext(ctx, "retries exhausted, moving task to dead letter queue")
	return true, w.deadLetter(ctx, task, runErr.Error(), nil)
}

// execute runs h with a deadline of one lock period while a heartbeat keeps
// the task locked. Panics are returned as errors.
func (w *Worker) execute(ctx context.Context, h Handler, task *Task) (err error) {
	hctx, cancel := context.WithTimeout(ctx, w.lockTimeout)
	defer cancel()

	stop := w.heartbeat(hctx, task.ID)
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler: %v", r)
		}
	}()

	return h.Handle(hctx, task.Payload)
}

func (w *Worker) heartbeat(ctx context.Context, taskID uuid.UUID) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(max(w.lockTimeout/2, time.Millisecond))
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.repo.ExtendLock(ctx, taskID, w.lockTimeout); err != nil && ctx.Err() == nil {
					w.logger.WarnContext(ctx, "failed to extend task lock", logger.TaskID(taskID), logger.Error(err))
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// deadLetter records the final failure and moves the task out of the queue.
// ret is returned when both steps succeed.
func (w *Worker) deadLetter(ctx context.Context, task *Task, msg string, ret error) error {
	if err := w.repo.FailTask(ctx, task.ID, msg); err != nil {
		return fmt.Errorf("fail task %s: %w", task.ID, err)
	}
	if err := w.repo.MoveToDLQ(ctx, task.ID); err != nil {
		return fmt.Errorf("move task %s to dead letter queue: %w", task.ID, err)
	}
	return ret
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}
