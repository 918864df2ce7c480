package queue

import "errors"

var (
	// ErrRepositoryNil is returned when a nil repository is provided
	ErrRepositoryNil = errors.New("repository cannot be nil")

	// ErrPayloadNil is returned when attempting to enqueue a nil payload
	ErrPayloadNil = errors.New("payload cannot be nil")

	// ErrInvalidPriority is returned when priority is outside valid range
	ErrInvalidPriority = errors.New("priority must be between 0 and 100")

	// ErrDuplicateTask is returned when an active task with the same unique key exists
	ErrDuplicateTask = errors.New("task with the same unique key is already queued")

	// ErrTaskNotFound is returned when a task id is unknown to the storage
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskNotProcessing is returned when a state change requires a claimed task
	ErrTaskNotProcessing = errors.New("task is not in processing state")

	// ErrNoTaskToClaim is returned by ClaimTask when nothing is ready to run
	ErrNoTaskToClaim = errors.New("no task to claim")

	// ErrHandlerNotFound is returned when no handler is registered for a task
	ErrHandlerNotFound = errors.New("no handler registered for task type")

	// ErrNoHandlers is returned when worker has no handlers registered
	ErrNoHandlers = errors.New("no task handlers registered")

	// ErrWorkerStarted is returned by Run when the worker is already running
	ErrWorkerStarted = errors.New("worker already started")

	// ErrShutdownTimeout is returned by Run when running tasks outlive the shutdown timeout
	ErrShutdownTimeout = errors.New("worker shutdown timed out")
)
