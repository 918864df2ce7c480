package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/queue"
	"github.com/dmitrymomot/billingkit/svc/subscription"
)

// TaskEnqueuer is satisfied by *queue.Enqueuer.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, payload any, opts ...queue.EnqueueOption) (*queue.Task, error)
}

// Trigger turns lifecycle billing requests into BillSubscription tasks.
type Trigger struct {
	enqueuer TaskEnqueuer
	opts     []queue.EnqueueOption
}

var _ subscription.BillingTrigger = (*Trigger)(nil)

// NewTrigger panics if enqueuer is nil. opts apply to every enqueued task.
func NewTrigger(enqueuer TaskEnqueuer, opts ...queue.EnqueueOption) *Trigger {
	if enqueuer == nil {
		panic("billing: TaskEnqueuer is required")
	}
	return &Trigger{enqueuer: enqueuer, opts: opts}
}

// EnqueueBilling schedules a billing run for the subscription. A run that is
// already queued for the same subscription absorbs the request.
func (t *Trigger) EnqueueBilling(ctx context.Context, subscriptionID uuid.UUID) error {
	opts := append([]queue.EnqueueOption{queue.WithUniqueKey(UniqueKey(subscriptionID))}, t.opts...)

	_, err := t.enqueuer.Enqueue(ctx, BillSubscription{SubscriptionID: subscriptionID}, opts...)
	if err != nil && !errors.Is(err, queue.ErrDuplicateTask) {
		return errors.Join(ErrEnqueueFailed, fmt.Errorf("subscription %s: %w", subscriptionID, err))
	}
	return nil
}

// UniqueKey is the queue deduplication key of a subscription's billing task.
func UniqueKey(subscriptionID uuid.UUID) string {
	return "bill:" + subscriptionID.String()
}
