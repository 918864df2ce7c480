package subscription

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// Service defines the public interface of the subscription lifecycle engine.
type Service interface {
	// CreateFromExternalRequest subscribes a customer to a plan, upgrading or
	// downgrading an existing subscription as needed. Requests for the same
	// customer are serialized and replays of a UniqueID return the
	// subscription produced the first time.
	CreateFromExternalRequest(ctx context.Context, req CreateRequest) (*Subscription, error)

	// ActivatePending activates pending subscriptions whose start date is at
	// or before now and terminates the subscriptions they replace.
	ActivatePending(ctx context.Context, now time.Time) (int, error)

	// Terminate ends an active subscription and cancels its pending successor.
	Terminate(ctx context.Context, id uuid.UUID) (*Subscription, error)

	GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error)
	NextSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error)
	PreviousSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error)
}

// CreateRequest carries an external subscription request.
type CreateRequest struct {
	OrganizationID     uuid.UUID
	CustomerExternalID string
	PlanCode           string
	Name               string
	// SubscriptionID pins the subscription to change instead of the
	// customer's active one.
	SubscriptionID *uuid.UUID
	// UniqueID is the client idempotency token. A random one is used when empty.
	UniqueID string
}

type service struct {
	store   Store
	plans   PlanFinder
	locker  Locker
	billing BillingTrigger
	dates   DateCalculator
	metrics *Metrics
	logger  *slog.Logger
	clock   func() time.Time
}

// NewService creates the lifecycle engine. Panics if store or plans is nil.
func NewService(store Store, plans PlanFinder, opts ...ServiceOption) Service {
	if store == nil {
		panic("subscription: Store is required")
	}
	if plans == nil {
		panic("subscription: PlanFinder is required")
	}

	s := &service{
		store:  store,
		plans:  plans,
		locker: NewKeyedLocker(),
		dates:  CalendarDates{},
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("subscription"))

	return s
}

// outcome is what a committed transaction decided.
type outcome struct {
	decision Decision
	result   *Subscription
	bill     []uuid.UUID
}

func (s *service) CreateFromExternalRequest(ctx context.Context, req CreateRequest) (_ *Subscription, err error) {
	defer s.metrics.observe("create", time.Now())
	defer func() { s.metrics.failure(err) }()

	externalID := strings.TrimSpace(req.CustomerExternalID)
	if externalID == "" {
		return nil, ErrCustomerIdentifierMissing
	}
	if strings.TrimSpace(req.PlanCode) == "" {
		return nil, ErrPlanCodeMissing
	}

	plan, err := s.plans.FindPlan(ctx, req.OrganizationID, req.PlanCode)
	if err != nil {
		return nil, err
	}

	key := customerLockKey(req.OrganizationID, externalID)
	release, err := s.acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	defer release()

	var out outcome
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Lock(ctx, key); err != nil {
			return err
		}
		out, err = s.decide(ctx, tx, req, externalID, plan)
		return err
	})
	if err != nil {
		s.logger.WarnContext(ctx, "subscription request rejected",
			logger.OrganizationID(req.OrganizationID),
			logger.CustomerID(externalID),
			logger.PlanCode(plan.Code),
			logger.Error(err))
		return nil, err
	}

	s.committed(ctx, out)
	return out.result, nil
}

func (s *service) decide(ctx context.Context, tx Tx, req CreateRequest, externalID string, plan *Plan) (outcome, error) {
	now := s.now()

	customer, err := s.findOrCreateCustomer(ctx, tx, req.OrganizationID, externalID, now)
	if err != nil {
		return outcome{}, err
	}

	uniqueID := strings.TrimSpace(req.UniqueID)
	if uniqueID == "" {
		uniqueID = uuid.NewString()
	} else {
		prior, err := tx.FindByUniqueID(ctx, customer.ID, uniqueID)
		switch {
		case err == nil:
			return s.replay(ctx, tx, prior)
		case !errors.Is(err, ErrSubscriptionNotFound):
			return outcome{}, err
		}
	}

	existing, err := s.existing(ctx, tx, customer.ID, req.SubscriptionID)
	if err != nil {
		return outcome{}, err
	}

	if existing == nil {
		sub := newSubscription(customer, plan, req.Name, uniqueID, now)
		sub.Status = StatusActive
		sub.StartedAt = &now
		sub.SubscriptionDate = s.dates.AnchorDate(plan.Interval, now)
		if err := tx.CreateSubscription(ctx, sub); err != nil {
			return outcome{}, err
		}

		out := outcome{decision: DecisionCreated, result: sub}
		if plan.PayInAdvance {
			out.bill = append(out.bill, sub.ID)
		}
		return out, nil
	}

	if existing.PlanID == plan.ID {
		return outcome{decision: DecisionUnchanged, result: existing}, nil
	}

	current, err := s.plans.GetPlan(ctx, existing.PlanID)
	if err != nil {
		return outcome{}, err
	}
	cmp, err := plan.Amount.Compare(current.Amount)
	if err != nil {
		return outcome{}, errors.Join(ErrCurrencyMismatch, err)
	}

	if err := s.cancelPendingSuccessor(ctx, tx, existing, now); err != nil {
		return outcome{}, err
	}

	next := newSubscription(customer, plan, req.Name, uniqueID, now)
	next.PreviousSubscriptionID = &existing.ID
	next.SubscriptionDate = existing.SubscriptionDate

	if cmp > 0 {
		if err := existing.fire(ctx, EventTerminate, now); err != nil {
			return outcome{}, err
		}
		if err := tx.UpdateSubscription(ctx, existing); err != nil {
			return outcome{}, err
		}

		next.Status = StatusActive
		next.StartedAt = &now
		if err := tx.CreateSubscription(ctx, next); err != nil {
			return outcome{}, err
		}

		out := outcome{decision: DecisionUpgrade, result: next}
		if !current.PayInAdvance {
			out.bill = append(out.bill, existing.ID)
		}
		if plan.PayInAdvance {
			out.bill = append(out.bill, next.ID)
		}
		return out, nil
	}

	startAt := s.dates.NextBoundary(current.Interval, existing.SubscriptionDate, now)
	next.Status = StatusPending
	next.PendingStartDate = &startAt
	if err := tx.CreateSubscription(ctx, next); err != nil {
		return outcome{}, err
	}

	return outcome{decision: DecisionDowngrade, result: existing}, nil
}

// replay answers a request whose token was already used. A replayed
// downgrade gets the subscription still in effect, as the first response did.
func (s *service) replay(ctx context.Context, tx Tx, prior *Subscription) (outcome, error) {
	out := outcome{decision: DecisionIdempotent, result: prior}
	if !prior.IsPending() || prior.PreviousSubscriptionID == nil {
		return out, nil
	}

	prev, err := tx.GetSubscription(ctx, *prior.PreviousSubscriptionID)
	if err != nil {
		return outcome{}, err
	}
	if prev.IsActive() {
		out.result = prev
	}
	return out, nil
}

func (s *service) findOrCreateCustomer(ctx context.Context, tx Tx, orgID uuid.UUID, externalID string, now time.Time) (*Customer, error) {
	c, err := tx.FindCustomer(ctx, orgID, externalID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrCustomerNotFound) {
		return nil, err
	}

	c = &Customer{
		ID:             uuid.New(),
		OrganizationID: orgID,
		ExternalID:     externalID,
		CreatedAt:      now,
	}
	if err := tx.CreateCustomer(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// existing returns the subscription a request applies to, or nil when the
// customer has no active subscription.
func (s *service) existing(ctx context.Context, tx Tx, customerID uuid.UUID, explicit *uuid.UUID) (*Subscription, error) {
	if explicit != nil {
		sub, err := tx.GetSubscription(ctx, *explicit)
		if err != nil {
			return nil, err
		}
		if sub.CustomerID != customerID {
			return nil, ErrSubscriptionNotFound
		}
		if !sub.IsActive() {
			return nil, ErrSubscriptionNotActive
		}
		return sub, nil
	}

	sub, err := tx.FindActive(ctx, customerID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return nil, nil
	}
	return sub, err
}

func (s *service) cancelPendingSuccessor(ctx context.Context, tx Tx, sub *Subscription, now time.Time) error {
	next, err := tx.NextSubscription(ctx, sub.ID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !next.IsPending() {
		return nil
	}

	if err := next.fire(ctx, EventCancel, now); err != nil {
		return err
	}
	if err := tx.UpdateSubscription(ctx, next); err != nil {
		return err
	}

	s.metrics.canceledSuccessor()
	s.logger.InfoContext(ctx, "pending subscription canceled",
		logger.SubscriptionID(next.ID),
		slog.String("previous_subscription_id", sub.ID.String()))
	return nil
}

func (s *service) ActivatePending(ctx context.Context, now time.Time) (int, error) {
	defer s.metrics.observe("activate_pending", time.Now())

	due, err := s.store.DuePending(ctx, now)
	if err != nil {
		return 0, err
	}

	var (
		activated int
		errs      []error
	)
	for _, p := range due {
		ok, err := s.activate(ctx, p, now)
		if err != nil {
			s.metrics.failure(err)
			s.logger.ErrorContext(ctx, "failed to activate pending subscription",
				logger.SubscriptionID(p.ID),
				logger.Error(err))
			errs = append(errs, err)
			continue
		}
		if ok {
			activated++
		}
	}
	return activated, errors.Join(errs...)
}

func (s *service) activate(ctx context.Context, pending *Subscription, now time.Time) (bool, error) {
	customer, err := s.store.GetCustomer(ctx, pending.CustomerID)
	if err != nil {
		return false, err
	}
	key := customerLockKey(customer.OrganizationID, customer.ExternalID)

	release, err := s.acquire(ctx, key)
	if err != nil {
		return false, err
	}
	defer release()

	var out outcome
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Lock(ctx, key); err != nil {
			return err
		}

		sub, err := tx.GetSubscription(ctx, pending.ID)
		if err != nil {
			return err
		}
		// a concurrent request may have canceled it since the listing
		if !sub.IsPending() || sub.PendingStartDate == nil || sub.PendingStartDate.After(now) {
			return nil
		}

		plan, err := s.plans.GetPlan(ctx, sub.PlanID)
		if err != nil {
			return err
		}

		current, err := tx.FindActive(ctx, sub.CustomerID)
		switch {
		case errors.Is(err, ErrSubscriptionNotFound):
		case err != nil:
			return err
		default:
			currentPlan, err := s.plans.GetPlan(ctx, current.PlanID)
			if err != nil {
				return err
			}
			if err := current.fire(ctx, EventTerminate, now); err != nil {
				return err
			}
			if err := tx.UpdateSubscription(ctx, current); err != nil {
				return err
			}
			if !currentPlan.PayInAdvance {
				out.bill = append(out.bill, current.ID)
			}
		}

		if err := sub.fire(ctx, EventActivate, now); err != nil {
			return err
		}
		if err := tx.UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		if plan.PayInAdvance {
			out.bill = append(out.bill, sub.ID)
		}

		out.decision = DecisionActivated
		out.result = sub
		return nil
	})
	if err != nil || out.result == nil {
		return false, err
	}

	s.committed(ctx, out)
	return true, nil
}

func (s *service) Terminate(ctx context.Context, id uuid.UUID) (_ *Subscription, err error) {
	defer s.metrics.observe("terminate", time.Now())
	defer func() { s.metrics.failure(err) }()

	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	customer, err := s.store.GetCustomer(ctx, sub.CustomerID)
	if err != nil {
		return nil, err
	}
	key := customerLockKey(customer.OrganizationID, customer.ExternalID)

	release, err := s.acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	defer release()

	var out outcome
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Lock(ctx, key); err != nil {
			return err
		}

		sub, err := tx.GetSubscription(ctx, id)
		if err != nil {
			return err
		}
		if !sub.IsActive() {
			return ErrSubscriptionNotActive
		}
		plan, err := s.plans.GetPlan(ctx, sub.PlanID)
		if err != nil {
			return err
		}

		now := s.now()
		if err := s.cancelPendingSuccessor(ctx, tx, sub, now); err != nil {
			return err
		}
		if err := sub.fire(ctx, EventTerminate, now); err != nil {
			return err
		}
		if err := tx.UpdateSubscription(ctx, sub); err != nil {
			return err
		}

		out = outcome{decision: DecisionTerminated, result: sub}
		if !plan.PayInAdvance {
			out.bill = append(out.bill, sub.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, out)
	return out.result, nil
}

func (s *service) GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	return s.store.GetSubscription(ctx, id)
}

func (s *service) NextSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	return s.store.NextSubscription(ctx, id)
}

func (s *service) PreviousSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.PreviousSubscriptionID == nil {
		return nil, ErrSubscriptionNotFound
	}
	return s.store.GetSubscription(ctx, *sub.PreviousSubscriptionID)
}

// committed records a decision and fires its billing triggers. The state is
// already durable here, so trigger failures are only logged.
func (s *service) committed(ctx context.Context, out outcome) {
	s.metrics.decision(out.decision)
	s.logger.InfoContext(ctx, "subscription decision committed",
		logger.Decision(string(out.decision)),
		logger.SubscriptionID(out.result.ID),
		logger.CustomerID(out.result.CustomerID))

	if s.billing == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, id := range out.bill {
		if err := s.billing.EnqueueBilling(ctx, id); err != nil {
			s.metrics.triggerFailed()
			s.logger.ErrorContext(ctx, "failed to enqueue billing",
				logger.SubscriptionID(id),
				logger.Error(err))
		}
	}
}

func (s *service) acquire(ctx context.Context, key string) (func(), error) {
	release, err := s.locker.Acquire(ctx, key)
	if err != nil {
		if IsConcurrencyConflict(err) {
			return nil, err
		}
		return nil, errors.Join(ErrLockNotAcquired, err)
	}
	return release, nil
}

// now is truncated to the precision PostgreSQL keeps.
func (s *service) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}

func customerLockKey(orgID uuid.UUID, externalID string) string {
	return "customer:" + orgID.String() + ":" + externalID
}

func newSubscription(c *Customer, plan *Plan, name, uniqueID string, now time.Time) *Subscription {
	return &Subscription{
		ID:             uuid.New(),
		OrganizationID: c.OrganizationID,
		CustomerID:     c.ID,
		PlanID:         plan.ID,
		UniqueID:       uniqueID,
		Name:           name,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
