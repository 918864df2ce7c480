package queue

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements the enqueuer and worker repositories in process.
// It backs tests and single-instance deployments; tasks do not survive a restart.
type MemoryStorage struct {
	mu       sync.RWMutex
	tasks    map[uuid.UUID]*Task
	dlq      map[uuid.UUID]*DeadLetter
	byStatus map[TaskStatus][]uuid.UUID
	byKey    map[string]uuid.UUID

	backoff    func(retry int8) time.Duration
	lockTicker *time.Ticker
	done       chan struct{}
	closeOnce  sync.Once
}

// MemoryStorageOption configures a MemoryStorage.
type MemoryStorageOption func(*MemoryStorage)

// WithRetryBackoff overrides the delay applied before a failed task is retried.
func WithRetryBackoff(fn func(retry int8) time.Duration) MemoryStorageOption {
	return func(ms *MemoryStorage) {
		if fn != nil {
			ms.backoff = fn
		}
	}
}

// NewMemoryStorage creates a new in-memory storage and starts its lock
// expiration loop. Call Close to stop it.
func NewMemoryStorage(opts ...MemoryStorageOption) *MemoryStorage {
	ms := &MemoryStorage{
		tasks:    make(map[uuid.UUID]*Task),
		dlq:      make(map[uuid.UUID]*DeadLetter),
		byStatus: make(map[TaskStatus][]uuid.UUID),
		byKey:    make(map[string]uuid.UUID),
		// linear: 30s, 60s, 90s...
		backoff: func(retry int8) time.Duration { return time.Duration(retry) * 30 * time.Second },
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ms)
	}

	ms.lockTicker = time.NewTicker(time.Second)
	go ms.lockExpirationManager()

	return ms
}

// Close stops the background goroutine.
func (ms *MemoryStorage) Close() error {
	ms.closeOnce.Do(func() {
		close(ms.done)
		ms.lockTicker.Stop()
	})
	return nil
}

// CreateTask implements EnqueuerRepository.
func (ms *MemoryStorage) CreateTask(_ context.Context, task *Task) error {
	if task == nil {
		return ErrPayloadNil
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %s already exists", task.ID)
	}
	if task.UniqueKey != "" {
		if id, ok := ms.byKey[task.UniqueKey]; ok && ms.tasks[id].active() {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, task.UniqueKey)
		}
	}

	taskCopy := *task
	ms.tasks[task.ID] = &taskCopy
	ms.byStatus[task.Status] = append(ms.byStatus[task.Status], task.ID)
	if task.UniqueKey != "" {
		ms.byKey[task.UniqueKey] = task.ID
	}

	return nil
}

// ClaimTask implements WorkerRepository. The highest priority ready task wins;
// ties go to the earliest scheduled one.
func (ms *MemoryStorage) ClaimTask(_ context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	var best *Task

	for _, taskID := range ms.byStatus[TaskStatusPending] {
		task := ms.tasks[taskID]
		if !slices.Contains(queues, task.Queue) || task.ScheduledAt.After(now) {
			continue
		}
		if best == nil || task.outranks(best) {
			best = task
		}
	}

	if best == nil {
		return nil, ErrNoTaskToClaim
	}

	lockUntil := now.Add(lockDuration)
	best.LockedUntil = &lockUntil
	best.LockedBy = &workerID
	ms.setStatus(best, TaskStatusProcessing)

	taskCopy := *best
	return &taskCopy, nil
}

// CompleteTask implements WorkerRepository.
func (ms *MemoryStorage) CompleteTask(_ context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, err := ms.processing(taskID)
	if err != nil {
		return err
	}

	now := time.Now()
	task.ProcessedAt = &now
	task.LockedUntil = nil
	task.LockedBy = nil
	ms.setStatus(task, TaskStatusCompleted)

	return nil
}

// FailTask implements WorkerRepository. The task goes back to pending with a
// backoff until its retries are exhausted, then it is marked failed.
func (ms *MemoryStorage) FailTask(_ context.Context, taskID uuid.UUID, errorMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, err := ms.processing(taskID)
	if err != nil {
		return err
	}

	task.RetryCount++
	task.Error = &errorMsg
	task.LockedUntil = nil
	task.LockedBy = nil

	if task.RetryCount > task.MaxRetries {
		ms.setStatus(task, TaskStatusFailed)
		return nil
	}

	task.ScheduledAt = time.Now().Add(ms.backoff(task.RetryCount))
	ms.setStatus(task, TaskStatusPending)
	return nil
}

// MoveToDLQ implements WorkerRepository.
func (ms *MemoryStorage) MoveToDLQ(_ context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, exists := ms.tasks[taskID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	now := time.Now()
	entry := &DeadLetter{
		ID:         uuid.New(),
		TaskID:     task.ID,
		Queue:      task.Queue,
		TaskName:   task.TaskName,
		Payload:    task.Payload,
		Priority:   task.Priority,
		RetryCount: task.RetryCount,
		FailedAt:   now,
	}
	if task.Error != nil {
		entry.Error = *task.Error
	}
	ms.dlq[entry.ID] = entry

	ms.removeFromStatusIndex(taskID, task.Status)
	if task.UniqueKey != "" && ms.byKey[task.UniqueKey] == taskID {
		delete(ms.byKey, task.UniqueKey)
	}
	delete(ms.tasks, taskID)

	return nil
}

// ExtendLock implements WorkerRepository.
func (ms *MemoryStorage) ExtendLock(_ context.Context, taskID uuid.UUID, duration time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, err := ms.processing(taskID)
	if err != nil {
		return err
	}

	lockUntil := time.Now().Add(duration)
	task.LockedUntil = &lockUntil
	return nil
}

// Tasks returns copies of the stored tasks with the given status,
// oldest first.
func (ms *MemoryStorage) Tasks(status TaskStatus) []Task {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]Task, 0, len(ms.byStatus[status]))
	for _, id := range ms.byStatus[status] {
		out = append(out, *ms.tasks[id])
	}
	slices.SortFunc(out, func(a, b Task) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

// DeadLetters returns copies of the dead letter entries.
func (ms *MemoryStorage) DeadLetters() []DeadLetter {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]DeadLetter, 0, len(ms.dlq))
	for _, e := range ms.dlq {
		out = append(out, *e)
	}
	return out
}

func (ms *MemoryStorage) processing(taskID uuid.UUID) (*Task, error) {
	task, exists := ms.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if task.Status != TaskStatusProcessing {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotProcessing, taskID)
	}
	return task, nil
}

func (ms *MemoryStorage) setStatus(task *Task, status TaskStatus) {
	ms.removeFromStatusIndex(task.ID, task.Status)
	task.Status = status
	ms.byStatus[status] = append(ms.byStatus[status], task.ID)
}

func (ms *MemoryStorage) removeFromStatusIndex(taskID uuid.UUID, status TaskStatus) {
	ms.byStatus[status] = slices.DeleteFunc(ms.byStatus[status], func(id uuid.UUID) bool {
		return id == taskID
	})
}

// lockExpirationManager returns tasks locked by dead workers to pending.
func (ms *MemoryStorage) lockExpirationManager() {
	for {
		select {
		case <-ms.lockTicker.C:
			ms.expireLocks()
		case <-ms.done:
			return
		}
	}
}

func (ms *MemoryStorage) expireLocks() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	for _, taskID := range slices.Clone(ms.byStatus[TaskStatusProcessing]) {
		task := ms.tasks[taskID]
		if task.LockedUntil != nil && task.LockedUntil.Before(now) {
			task.LockedUntil = nil
			task.LockedBy = nil
			ms.setStatus(task, TaskStatusPending)
		}
	}
}
