package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnqueuerRepository stores new tasks.
type EnqueuerRepository interface {
	// CreateTask returns ErrDuplicateTask when task.UniqueKey is held by an
	// active task.
	CreateTask(ctx context.Context, task *Task) error
}

// Enqueuer turns payloads into tasks.
type Enqueuer struct {
	repo       EnqueuerRepository
	queue      string
	priority   Priority
	maxRetries int8
	now        func() time.Time
}

// EnqueuerOption configures the defaults of an Enqueuer.
type EnqueuerOption func(*Enqueuer)

func WithDefaultQueue(name string) EnqueuerOption {
	return func(e *Enqueuer) {
		if name != "" {
			e.queue = name
		}
	}
}

func WithDefaultPriority(p Priority) EnqueuerOption {
	return func(e *Enqueuer) {
		if p.Valid() {
			e.priority = p
		}
	}
}

// WithDefaultMaxRetries ignores values outside 0..10.
func WithDefaultMaxRetries(n int8) EnqueuerOption {
	return func(e *Enqueuer) {
		if validRetries(n) {
			e.maxRetries = n
		}
	}
}

func NewEnqueuer(repo EnqueuerRepository, opts ...EnqueuerOption) (*Enqueuer, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	e := &Enqueuer{
		repo:       repo,
		queue:      DefaultQueueName,
		priority:   PriorityNormal,
		maxRetries: 3,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// EnqueueOption adjusts a single task before it is stored. Options run in
// order on a task already filled with the enqueuer defaults.
type EnqueueOption func(*Task)

func WithQueue(name string) EnqueueOption {
	return func(t *Task) {
		if name != "" {
			t.Queue = name
		}
	}
}

// WithPriority is checked when the task is enqueued; out of range values
// fail with ErrInvalidPriority.
func WithPriority(p Priority) EnqueueOption {
	return func(t *Task) { t.Priority = p }
}

func WithMaxRetries(n int8) EnqueueOption {
	return func(t *Task) {
		if validRetries(n) {
			t.MaxRetries = n
		}
	}
}

// WithDelay holds the task back for d after its creation.
func WithDelay(d time.Duration) EnqueueOption {
	return func(t *Task) {
		if d > 0 {
			t.ScheduledAt = t.CreatedAt.Add(d)
		}
	}
}

func WithScheduledAt(at time.Time) EnqueueOption {
	return func(t *Task) { t.ScheduledAt = at }
}

// WithTaskName overrides the name derived from the payload type. The worker
// needs a handler registered under the same name.
func WithTaskName(name string) EnqueueOption {
	return func(t *Task) {
		if name != "" {
			t.TaskName = name
		}
	}
}

// WithUniqueKey deduplicates the task against active tasks with the same key.
func WithUniqueKey(key string) EnqueueOption {
	return func(t *Task) { t.UniqueKey = key }
}

// Enqueue stores payload as a JSON task. Unless WithTaskName says otherwise
// the task is named after the payload type, which is the name
// NewTaskHandler registers under.
func (e *Enqueuer) Enqueue(ctx context.Context, payload any, opts ...EnqueueOption) (*Task, error) {
	if payload == nil {
		return nil, ErrPayloadNil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %T payload: %w", payload, err)
	}

	now := e.now()
	task := &Task{
		ID:          uuid.New(),
		Queue:       e.queue,
		TaskName:    qualifiedStructName(payload),
		Payload:     raw,
		Status:      TaskStatusPending,
		Priority:    e.priority,
		MaxRetries:  e.maxRetries,
		ScheduledAt: now,
		CreatedAt:   now,
	}
	for _, opt := range opts {
		opt(task)
	}
	if !task.Priority.Valid() {
		return nil, ErrInvalidPriority
	}

	if err := e.repo.CreateTask(ctx, task); err != nil {
		if errors.Is(err, ErrDuplicateTask) {
			return nil, err
		}
		return nil, fmt.Errorf("create task %q in queue %q: %w", task.TaskName, task.Queue, err)
	}
	return task, nil
}

func validRetries(n int8) bool {
	return n >= 0 && n <= 10
}
