package pgstorage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/billingkit/pkg/pg"
	"github.com/dmitrymomot/billingkit/pkg/queue"
)

// Migrations holds the goose migrations of the task tables. They track their
// version in MigrationsTable so they can share a database with other schemas.
//
//go:embed migrations/*.sql
var Migrations embed.FS

const (
	MigrationsDir   = "migrations"
	MigrationsTable = "queue_schema_migrations"
)

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	pg.TxBeginner
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Storage implements queue.EnqueuerRepository and queue.WorkerRepository on
// PostgreSQL. Several workers may claim from the same tables; a task whose
// lock expired is claimable again.
type Storage struct {
	db      DB
	backoff func(retry int8) time.Duration
}

var (
	_ queue.EnqueuerRepository = (*Storage)(nil)
	_ queue.WorkerRepository   = (*Storage)(nil)
)

// Option configures a Storage.
type Option func(*Storage)

// WithRetryBackoff overrides the delay applied before a failed task is retried.
func WithRetryBackoff(fn func(retry int8) time.Duration) Option {
	return func(s *Storage) {
		if fn != nil {
			s.backoff = fn
		}
	}
}

func New(db DB, opts ...Option) *Storage {
	s := &Storage{
		db:      db,
		backoff: func(retry int8) time.Duration { return time.Duration(retry) * 30 * time.Second },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const taskColumns = `id, queue, task_name, unique_key, payload, status, priority, retry_count,
	max_retries, scheduled_at, locked_until, locked_by, processed_at, error, created_at`

func (s *Storage) CreateTask(ctx context.Context, task *queue.Task) error {
	if task == nil {
		return queue.ErrPayloadNil
	}

	var uniqueKey *string
	if task.UniqueKey != "" {
		uniqueKey = &task.UniqueKey
	}

	_, err := s.db.Exec(ctx, `INSERT INTO queue_tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		task.ID, task.Queue, task.TaskName, uniqueKey, task.Payload, task.Status, task.Priority,
		task.RetryCount, task.MaxRetries, task.ScheduledAt, task.LockedUntil, task.LockedBy,
		task.ProcessedAt, task.Error, task.CreatedAt,
	)
	if pg.IsDuplicateKeyError(err) && uniqueKey != nil {
		return fmt.Errorf("%w: %s", queue.ErrDuplicateTask, task.UniqueKey)
	}
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// ClaimTask locks the highest priority ready task with SKIP LOCKED, so
// concurrent workers never claim the same row.
func (s *Storage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*queue.Task, error) {
	row := s.db.QueryRow(ctx, `UPDATE queue_tasks SET
			status = 'processing',
			locked_by = $1,
			locked_until = now() + make_interval(secs => $3)
		WHERE id = (
			SELECT id FROM queue_tasks
			WHERE queue = ANY($2)
				AND ((status = 'pending' AND scheduled_at <= now())
					OR (status = 'processing' AND locked_until < now()))
			ORDER BY priority DESC, scheduled_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+taskColumns,
		workerID, queues, lockDuration.Seconds(),
	)

	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, queue.ErrNoTaskToClaim
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return task, nil
}

func (s *Storage) CompleteTask(ctx context.Context, taskID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `UPDATE queue_tasks SET
			status = 'completed', processed_at = now(), locked_until = NULL, locked_by = NULL
		WHERE id = $1 AND status = 'processing'`, taskID)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.stateError(ctx, taskID)
	}
	return nil
}

// FailTask reschedules the task with a backoff, or marks it failed once
// retry_count exceeds max_retries.
func (s *Storage) FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error {
	return pg.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var retries, maxRetries int8
		err := tx.QueryRow(ctx, `SELECT retry_count, max_retries FROM queue_tasks
			WHERE id = $1 AND status = 'processing' FOR UPDATE`, taskID).Scan(&retries, &maxRetries)
		if errors.Is(err, pgx.ErrNoRows) {
			return s.stateError(ctx, taskID)
		}
		if err != nil {
			return fmt.Errorf("load task: %w", err)
		}

		retries++
		status := queue.TaskStatusPending
		if retries > maxRetries {
			status = queue.TaskStatusFailed
		}

		_, err = tx.Exec(ctx, `UPDATE queue_tasks SET
				status = $2, retry_count = $3, error = $4, scheduled_at = now() + make_interval(secs => $5),
				locked_until = NULL, locked_by = NULL
			WHERE id = $1`, taskID, status, retries, errorMsg, s.backoff(retries).Seconds())
		if err != nil {
			return fmt.Errorf("fail task: %w", err)
		}
		return nil
	})
}

func (s *Storage) MoveToDLQ(ctx context.Context, taskID uuid.UUID) error {
	return pg.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		task, err := scanTask(tx.QueryRow(ctx, `DELETE FROM queue_tasks WHERE id = $1 RETURNING `+taskColumns, taskID))
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", queue.ErrTaskNotFound, taskID)
		}
		if err != nil {
			return fmt.Errorf("delete task: %w", err)
		}

		var msg string
		if task.Error != nil {
			msg = *task.Error
		}
		_, err = tx.Exec(ctx, `INSERT INTO queue_tasks_dlq
				(id, task_id, queue, task_name, payload, priority, error, retry_count, failed_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())`,
			uuid.New(), task.ID, task.Queue, task.TaskName, task.Payload, task.Priority, msg, task.RetryCount)
		if err != nil {
			return fmt.Errorf("insert dead letter: %w", err)
		}
		return nil
	})
}

func (s *Storage) ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error {
	tag, err := s.db.Exec(ctx, `UPDATE queue_tasks SET locked_until = now() + make_interval(secs => $2)
		WHERE id = $1 AND status = 'processing'`, taskID, duration.Seconds())
	if err != nil {
		return fmt.Errorf("extend lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.stateError(ctx, taskID)
	}
	return nil
}

// stateError explains why a processing-only update matched no row.
func (s *Storage) stateError(ctx context.Context, taskID uuid.UUID) error {
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM queue_tasks WHERE id = $1)`, taskID).Scan(&exists); err != nil {
		return fmt.Errorf("load task: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", queue.ErrTaskNotFound, taskID)
	}
	return fmt.Errorf("%w: %s", queue.ErrTaskNotProcessing, taskID)
}

func scanTask(row pgx.Row) (*queue.Task, error) {
	var t queue.Task
	var uniqueKey *string
	err := row.Scan(
		&t.ID, &t.Queue, &t.TaskName, &uniqueKey, &t.Payload, &t.Status, &t.Priority, &t.RetryCount,
		&t.MaxRetries, &t.ScheduledAt, &t.LockedUntil, &t.LockedBy, &t.ProcessedAt, &t.Error, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if uniqueKey != nil {
		t.UniqueKey = *uniqueKey
	}
	return &t, nil
}
