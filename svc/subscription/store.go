package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Reader is the read side of subscription persistence.
// Lookups of a single record return ErrSubscriptionNotFound or
// ErrCustomerNotFound when nothing matches.
type Reader interface {
	GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (*Customer, error)

	// NextSubscription returns the newest non-canceled subscription whose
	// PreviousSubscriptionID is id.
	NextSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// DuePending lists pending subscriptions with PendingStartDate at or
	// before the given time, oldest first.
	DuePending(ctx context.Context, before time.Time) ([]*Subscription, error)
}

// Tx is a unit of work over the subscriptions of one customer.
// Writes become visible to other transactions only after commit.
type Tx interface {
	Reader

	// Lock serializes transactions using the same key until this one ends.
	// It complements the Service Locker for stores shared by several processes.
	Lock(ctx context.Context, key string) error

	FindCustomer(ctx context.Context, organizationID uuid.UUID, externalID string) (*Customer, error)
	CreateCustomer(ctx context.Context, c *Customer) error

	// FindActive returns the active subscription of a customer.
	FindActive(ctx context.Context, customerID uuid.UUID) (*Subscription, error)
	// FindByUniqueID looks up the subscription created for an idempotency token.
	FindByUniqueID(ctx context.Context, customerID uuid.UUID, uniqueID string) (*Subscription, error)

	// CreateSubscription returns ErrDuplicateSubscription when the customer
	// already has a subscription with the same UniqueID.
	CreateSubscription(ctx context.Context, s *Subscription) error
	UpdateSubscription(ctx context.Context, s *Subscription) error
}

// Store opens transactions and serves reads outside of them.
type Store interface {
	Reader

	// InTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// PlanFinder resolves plans. Both methods return ErrPlanNotFound for
// unknown plans.
type PlanFinder interface {
	FindPlan(ctx context.Context, organizationID uuid.UUID, code string) (*Plan, error)
	GetPlan(ctx context.Context, id uuid.UUID) (*Plan, error)
}

// Locker provides exclusive sections keyed by string. The returned release
// func must be called exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// BillingTrigger schedules billing of a subscription. It is called after
// the state change is committed and its failures never undo that change.
type BillingTrigger interface {
	EnqueueBilling(ctx context.Context, subscriptionID uuid.UUID) error
}

// DateCalculator computes billing dates for a plan interval.
type DateCalculator interface {
	// AnchorDate is the subscription_date of a new chain started at startedAt.
	AnchorDate(interval Interval, startedAt time.Time) time.Time
	// NextBoundary is the first period boundary of the chain strictly after now.
	NextBoundary(interval Interval, anchor, now time.Time) time.Time
}
