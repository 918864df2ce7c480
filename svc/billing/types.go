package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/billingkit/pkg/money"
	"github.com/dmitrymomot/billingkit/svc/subscription"
)

// BillSubscription is the queue payload asking to bill one subscription.
type BillSubscription struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
}

// FeeKind tells a base subscription fee from a usage charge fee.
type FeeKind string

const (
	FeeKindSubscription FeeKind = "subscription"
	FeeKindCharge       FeeKind = "charge"
)

// Timing is when a fee is billed relative to the period it covers.
type Timing string

const (
	TimingInAdvance Timing = "in_advance"
	TimingArrears   Timing = "arrears"
)

// Fee is one billable line computed for a subscription.
// ChargeID is uuid.Nil for the base subscription fee.
type Fee struct {
	ID             uuid.UUID
	SubscriptionID uuid.UUID
	PlanID         uuid.UUID
	ChargeID       uuid.UUID
	Kind           FeeKind
	Timing         Timing
	BillableMetric string
	Units          decimal.Decimal
	Amount         money.Money
	CreatedAt      time.Time
}

// SubscriptionReader loads subscriptions. subscription.Store satisfies it.
type SubscriptionReader interface {
	GetSubscription(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error)
}

// PlanReader loads plans by ID. *subscription.Catalog satisfies it.
type PlanReader interface {
	GetPlan(ctx context.Context, id uuid.UUID) (*subscription.Plan, error)
}

// UsageSource supplies the aggregated usage of one charge for the period
// being billed. Aggregating metered events is its concern.
type UsageSource interface {
	Quantity(ctx context.Context, sub *subscription.Subscription, charge subscription.Charge) (decimal.Decimal, error)
}

// FeeSink receives the fees of one billing run. Implementations should
// treat Fee.ID as an idempotency key since a failed run is retried.
type FeeSink interface {
	StoreFees(ctx context.Context, fees []Fee) error
}
