package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/billingkit/pkg/chargemodel"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/money"
	"github.com/dmitrymomot/billingkit/pkg/queue"
	"github.com/dmitrymomot/billingkit/svc/subscription"
)

// Service computes the fees of a subscription from its plan and usage.
type Service struct {
	subs    SubscriptionReader
	plans   PlanReader
	usage   UsageSource
	sink    FeeSink
	metrics *Metrics
	logger  *slog.Logger
	clock   func() time.Time
}

// NewService panics if any collaborator is nil.
func NewService(subs SubscriptionReader, plans PlanReader, usage UsageSource, sink FeeSink, opts ...Option) *Service {
	switch {
	case subs == nil:
		panic("billing: SubscriptionReader is required")
	case plans == nil:
		panic("billing: PlanReader is required")
	case usage == nil:
		panic("billing: UsageSource is required")
	case sink == nil:
		panic("billing: FeeSink is required")
	}

	s := &Service{
		subs:   subs,
		plans:  plans,
		usage:  usage,
		sink:   sink,
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("billing"))

	return s
}

// Handler returns the queue handler for BillSubscription tasks.
func (s *Service) Handler() queue.Handler {
	return queue.NewTaskHandler(func(ctx context.Context, p BillSubscription) error {
		_, err := s.Bill(ctx, p.SubscriptionID)
		if errors.Is(err, ErrSubscriptionNotBillable) {
			// a retry cannot change the outcome
			return nil
		}
		return err
	})
}

// Bill computes and stores the fees due for the subscription in its
// current state. Active subscriptions are billed for what is paid in
// advance, terminated ones for what is paid in arrears. Pending and
// canceled subscriptions return ErrSubscriptionNotBillable.
func (s *Service) Bill(ctx context.Context, subscriptionID uuid.UUID) (_ []Fee, err error) {
	defer s.metrics.observe(time.Now())
	defer func() { s.metrics.run(err) }()

	sub, err := s.subs.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	var timing Timing
	var billedAt time.Time
	switch {
	case sub.IsActive():
		timing, billedAt = TimingInAdvance, s.now()
	case sub.IsTerminated() && sub.TerminatedAt != nil:
		timing, billedAt = TimingArrears, *sub.TerminatedAt
	default:
		s.logger.InfoContext(ctx, "subscription skipped by billing",
			logger.SubscriptionID(sub.ID),
			slog.String("status", string(sub.Status)))
		return nil, fmt.Errorf("%w: %s is %s", ErrSubscriptionNotBillable, sub.ID, sub.Status)
	}

	plan, err := s.plans.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}

	fees, err := s.fees(ctx, sub, plan, timing, billedAt)
	if err != nil {
		return nil, err
	}
	if len(fees) == 0 {
		return nil, nil
	}

	if err := s.sink.StoreFees(ctx, fees); err != nil {
		return nil, errors.Join(ErrFeeSinkFailed, err)
	}

	s.metrics.feesStored(fees)
	s.logger.InfoContext(ctx, "subscription billed",
		logger.SubscriptionID(sub.ID),
		logger.PlanCode(plan.Code),
		slog.String("timing", string(timing)),
		slog.Int("fees", len(fees)))

	return fees, nil
}

func (s *Service) fees(ctx context.Context, sub *subscription.Subscription, plan *subscription.Plan, timing Timing, billedAt time.Time) ([]Fee, error) {
	var fees []Fee
	now := s.now()

	if plan.PayInAdvance == (timing == TimingInAdvance) && !inTrial(sub, plan, billedAt) {
		fees = append(fees, Fee{
			ID:             feeID(sub.ID, timing, uuid.Nil),
			SubscriptionID: sub.ID,
			PlanID:         plan.ID,
			Kind:           FeeKindSubscription,
			Timing:         timing,
			Units:          decimal.NewFromInt(1),
			Amount:         plan.Amount.Round(),
			CreatedAt:      now,
		})
	}

	for _, charge := range plan.Charges {
		if charge.PayInAdvance != (timing == TimingInAdvance) {
			continue
		}

		model, err := charge.Parse()
		if err != nil {
			return nil, errors.Join(ErrInvalidCharge, fmt.Errorf("charge %s: %w", charge.ID, err))
		}

		units, err := s.usage.Quantity(ctx, sub, charge)
		if err != nil {
			return nil, errors.Join(ErrUsageUnavailable, fmt.Errorf("charge %s: %w", charge.ID, err))
		}

		fees = append(fees, Fee{
			ID:             feeID(sub.ID, timing, charge.ID),
			SubscriptionID: sub.ID,
			PlanID:         plan.ID,
			ChargeID:       charge.ID,
			Kind:           FeeKindCharge,
			Timing:         timing,
			BillableMetric: charge.BillableMetric,
			Units:          units,
			Amount:         money.New(chargemodel.Apply(model, units), plan.Amount.Currency).Round(),
			CreatedAt:      now,
		})
	}

	return fees, nil
}

// inTrial reports whether at falls inside the plan's free trial.
func inTrial(sub *subscription.Subscription, plan *subscription.Plan, at time.Time) bool {
	if !plan.HasTrial() || sub.StartedAt == nil {
		return false
	}
	return at.Before(sub.StartedAt.AddDate(0, 0, plan.TrialPeriod))
}

// feeID is stable across retries of the same billing run.
func feeID(subscriptionID uuid.UUID, timing Timing, chargeID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(subscriptionID, []byte(string(timing)+":"+chargeID.String()))
}

func (s *Service) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}
