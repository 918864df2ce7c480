package queue

import (
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is used when neither the enqueuer nor the task names a queue.
const DefaultQueueName = "default"

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Priority orders ready tasks of a queue, higher first. Valid range is 0..100.
type Priority int8

const (
	PriorityMin    Priority = 0
	PriorityLow    Priority = 25
	PriorityNormal Priority = 50
	PriorityHigh   Priority = 75
	PriorityMax    Priority = 100
)

func (p Priority) Valid() bool {
	return p >= PriorityMin && p <= PriorityMax
}

// Task is one unit of deferred work.
//
// A non-empty UniqueKey is held while the task is pending or processing;
// storages refuse a second task with the same key during that time.
// RetryCount counts failed attempts so far.
type Task struct {
	ID          uuid.UUID
	Queue       string
	TaskName    string
	UniqueKey   string
	Payload     []byte
	Status      TaskStatus
	Priority    Priority
	RetryCount  int8
	MaxRetries  int8
	ScheduledAt time.Time
	LockedUntil *time.Time
	LockedBy    *uuid.UUID
	ProcessedAt *time.Time
	Error       *string
	CreatedAt   time.Time
}

func (t *Task) active() bool {
	return t.Status == TaskStatusPending || t.Status == TaskStatusProcessing
}

// lastAttempt reports whether a failure of the current attempt exhausts
// the retry budget.
func (t *Task) lastAttempt() bool {
	return t.RetryCount >= t.MaxRetries
}

// outranks reports whether t should be claimed before o.
func (t *Task) outranks(o *Task) bool {
	if t.Priority != o.Priority {
		return t.Priority > o.Priority
	}
	return t.ScheduledAt.Before(o.ScheduledAt)
}

// DeadLetter is the record kept for a task that will not be retried again.
type DeadLetter struct {
	ID         uuid.UUID
	TaskID     uuid.UUID
	Queue      string
	TaskName   string
	Payload    []byte
	Priority   Priority
	Error      string
	RetryCount int8
	FailedAt   time.Time
}
