package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/statemachine"
)

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusPending    Status = "pending"
	StatusActive     Status = "active"
	StatusTerminated Status = "terminated"
	StatusCanceled   Status = "canceled"
)

// Event moves a subscription between statuses.
type Event string

const (
	EventActivate  Event = "activate"
	EventTerminate Event = "terminate"
	EventCancel    Event = "cancel"
)

// Subscription is one link of a customer's subscription chain.
// Chain neighbours are referenced by ID only: the successor of a subscription
// is the one whose PreviousSubscriptionID points at it.
type Subscription struct {
	ID                     uuid.UUID
	OrganizationID         uuid.UUID
	CustomerID             uuid.UUID
	PlanID                 uuid.UUID
	UniqueID               string
	Name                   string
	Status                 Status
	PreviousSubscriptionID *uuid.UUID

	SubscriptionDate time.Time // billing anchor shared by the whole chain
	StartedAt        *time.Time
	PendingStartDate *time.Time
	CanceledAt       *time.Time
	TerminatedAt     *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (s *Subscription) IsPending() bool    { return s.Status == StatusPending }
func (s *Subscription) IsActive() bool     { return s.Status == StatusActive }
func (s *Subscription) IsTerminated() bool { return s.Status == StatusTerminated }
func (s *Subscription) IsCanceled() bool   { return s.Status == StatusCanceled }

// transition is the payload passed through the lifecycle table actions.
type transition struct {
	sub *Subscription
	at  time.Time
}

type lifecycleRule = statemachine.Rule[Status, Event, transition]

func stamp(set func(s *Subscription, at time.Time)) []statemachine.Action[Status, Event, transition] {
	return []statemachine.Action[Status, Event, transition]{
		func(_ context.Context, _, _ Status, _ Event, t transition) error {
			if t.sub == nil {
				return errors.New("missing subscription in transition data")
			}
			set(t.sub, t.at)
			return nil
		},
	}
}

// lifecycle lists the only status changes a subscription may go through.
// Terminated and canceled are final.
var lifecycle = statemachine.MustNew(
	lifecycleRule{From: StatusPending, To: StatusActive, Event: EventActivate,
		Actions: stamp(func(s *Subscription, at time.Time) { s.StartedAt = &at })},
	lifecycleRule{From: StatusPending, To: StatusCanceled, Event: EventCancel,
		Actions: stamp(func(s *Subscription, at time.Time) { s.CanceledAt = &at })},
	lifecycleRule{From: StatusActive, To: StatusTerminated, Event: EventTerminate,
		Actions: stamp(func(s *Subscription, at time.Time) { s.TerminatedAt = &at })},
)

// fire applies event to s at the given time. On error s is left untouched.
func (s *Subscription) fire(ctx context.Context, event Event, at time.Time) error {
	next := *s
	to, err := lifecycle.Fire(ctx, s.Status, event, transition{sub: &next, at: at})
	if err != nil {
		if errors.Is(err, statemachine.ErrNoTransition) {
			return errors.Join(ErrInvalidTransition, err)
		}
		return err
	}
	next.Status = to
	next.UpdatedAt = at
	*s = next
	return nil
}

// CanFire reports whether event is allowed in the current status.
func (s *Subscription) CanFire(ctx context.Context, event Event) bool {
	return lifecycle.CanFire(ctx, s.Status, event, transition{})
}

func (s *Subscription) clone() *Subscription {
	c := *s
	return &c
}
