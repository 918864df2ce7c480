package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/queue"
)

func newTask(queueName string, priority queue.Priority) *queue.Task {
	now := time.Now()
	return &queue.Task{
		ID:          uuid.New(),
		Queue:       queueName,
		TaskName:    "bill",
		Status:      queue.TaskStatusPending,
		Priority:    priority,
		MaxRetries:  1,
		ScheduledAt: now,
		CreatedAt:   now,
	}
}

func newStorage(t *testing.T) *queue.MemoryStorage {
	t.Helper()
	ms := queue.NewMemoryStorage(queue.WithRetryBackoff(func(int8) time.Duration { return 0 }))
	t.Cleanup(func() { _ = ms.Close() })
	return ms
}

func TestMemoryStorage_ClaimOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ms := newStorage(t)
	worker := uuid.New()

	low := newTask("billing", queue.PriorityLow)
	high := newTask("billing", queue.PriorityHigh)
	other := newTask("other", queue.PriorityMax)
	future := newTask("billing", queue.PriorityMax)
	future.ScheduledAt = time.Now().Add(time.Hour)

	for _, task := range []*queue.Task{low, high, other, future} {
		require.NoError(t, ms.CreateTask(ctx, task))
	}

	claimed, err := ms.ClaimTask(ctx, worker, []string{"billing"}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, high.ID, claimed.ID)
	assert.Equal(t, queue.TaskStatusProcessing, claimed.Status)
	assert.Equal(t, worker, *claimed.LockedBy)

	claimed, err = ms.ClaimTask(ctx, worker, []string{"billing"}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, low.ID, claimed.ID)

	_, err = ms.ClaimTask(ctx, worker, []string{"billing"}, time.Minute)
	assert.ErrorIs(t, err, queue.ErrNoTaskToClaim)
}

func TestMemoryStorage_UniqueKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ms := newStorage(t)

	first := newTask("billing", queue.PriorityNormal)
	first.UniqueKey = "bill:sub-1"
	require.NoError(t, ms.CreateTask(ctx, first))

	dup := newTask("billing", queue.PriorityNormal)
	dup.UniqueKey = "bill:sub-1"
	assert.ErrorIs(t, ms.CreateTask(ctx, dup), queue.ErrDuplicateTask)

	claimed, err := ms.ClaimTask(ctx, uuid.New(), []string{"billing"}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, ms.CompleteTask(ctx, claimed.ID))

	assert.NoError(t, ms.CreateTask(ctx, dup), "completed tasks release their key")
}

func TestMemoryStorage_FailAndRetry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ms := newStorage(t)
	worker := uuid.New()

	task := newTask("billing", queue.PriorityNormal)
	require.NoError(t, ms.CreateTask(ctx, task))

	_, err := ms.ClaimTask(ctx, worker, []string{"billing"}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, ms.FailTask(ctx, task.ID, "usage source unavailable"))

	pending := ms.Tasks(queue.TaskStatusPending)
	require.Len(t, pending, 1)
	assert.Equal(t, int8(1), pending[0].RetryCount)
	assert.Equal(t, "usage source unavailable", *pending[0].Error)

	_, err = ms.ClaimTask(ctx, worker, []string{"billing"}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, ms.FailTask(ctx, task.ID, "still down"))
	assert.Len(t, ms.Tasks(queue.TaskStatusFailed), 1)

	require.NoError(t, ms.MoveToDLQ(ctx, task.ID))
	dlq := ms.DeadLetters()
	require.Len(t, dlq, 1)
	assert.Equal(t, task.ID, dlq[0].TaskID)
	assert.Equal(t, "still down", dlq[0].Error)
	assert.Empty(t, ms.Tasks(queue.TaskStatusFailed))
}

func TestMemoryStorage_StateErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ms := newStorage(t)

	task := newTask("billing", queue.PriorityNormal)
	require.NoError(t, ms.CreateTask(ctx, task))

	assert.ErrorIs(t, ms.CompleteTask(ctx, task.ID), queue.ErrTaskNotProcessing)
	assert.ErrorIs(t, ms.FailTask(ctx, task.ID, "x"), queue.ErrTaskNotProcessing)
	assert.ErrorIs(t, ms.ExtendLock(ctx, task.ID, time.Minute), queue.ErrTaskNotProcessing)
	assert.ErrorIs(t, ms.CompleteTask(ctx, uuid.New()), queue.ErrTaskNotFound)
	assert.ErrorIs(t, ms.MoveToDLQ(ctx, uuid.New()), queue.ErrTaskNotFound)
	assert.Error(t, ms.CreateTask(ctx, task), "same id twice")
}

func TestMemoryStorage_LockExpiration(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ms := newStorage(t)

	task := newTask("billing", queue.PriorityNormal)
	require.NoError(t, ms.CreateTask(ctx, task))

	_, err := ms.ClaimTask(ctx, uuid.New(), []string{"billing"}, 10*time.Millisecond)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(ms.Tasks(queue.TaskStatusPending)) == 1
	}, 3*time.Second, 50*time.Millisecond)
}

func TestMemoryStorage_ConcurrentClaims(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ms := newStorage(t)

	const n = 50
	for range n {
		require.NoError(t, ms.CreateTask(ctx, newTask("billing", queue.PriorityNormal)))
	}

	var (
		mu   sync.Mutex
		seen = make(map[uuid.UUID]bool)
		wg   sync.WaitGroup
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, err := ms.ClaimTask(ctx, uuid.New(), []string{"billing"}, time.Minute)
				if err != nil {
					return
				}
				mu.Lock()
				assert.False(t, seen[task.ID], "task claimed twice")
				seen[task.ID] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
}
