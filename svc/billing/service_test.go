package billing_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/chargemodel"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/money"
	"github.com/dmitrymomot/billingkit/svc/billing"
	"github.com/dmitrymomot/billingkit/svc/subscription"
)

var (
	orgID   = uuid.MustParse("3b1f1c7e-5d64-4a0f-8a8e-7a0c2b9d6e21")
	fixedAt = time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
)

type usageStub struct {
	units map[string]decimal.Decimal
	err   error
}

func (u usageStub) Quantity(_ context.Context, _ *subscription.Subscription, c subscription.Charge) (decimal.Decimal, error) {
	if u.err != nil {
		return decimal.Zero, u.err
	}
	return u.units[c.BillableMetric], nil
}

type recordingSink struct {
	mu    sync.Mutex
	calls [][]billing.Fee
	err   error
}

func (s *recordingSink) StoreFees(_ context.Context, fees []billing.Fee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, fees)
	return nil
}

func (s *recordingSink) runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func charge(metric string, kind chargemodel.Kind, props string, payInAdvance bool) subscription.Charge {
	return subscription.Charge{
		ID:             uuid.NewSHA1(orgID, []byte(metric)),
		BillableMetric: metric,
		Model:          kind,
		Properties:     json.RawMessage(props),
		PayInAdvance:   payInAdvance,
	}
}

func plan(code, amount string, payInAdvance bool, trial int, charges ...subscription.Charge) subscription.Plan {
	return subscription.Plan{
		OrganizationID: orgID,
		Code:           code,
		Interval:       subscription.IntervalMonthly,
		Amount:         money.New(decimal.RequireFromString(amount), "EUR"),
		PayInAdvance:   payInAdvance,
		TrialPeriod:    trial,
		Charges:        charges,
	}
}

type fixture struct {
	lifecycle subscription.Service
	store     *subscription.MemoryStore
	catalog   *subscription.Catalog
	now       *time.Time
}

func newFixture(t *testing.T, opts ...subscription.ServiceOption) *fixture {
	t.Helper()

	catalog, err := subscription.NewCatalog(context.Background(), subscription.NewInMemSource(
		plan("usage", "10", false, 0,
			charge("api_calls", chargemodel.KindStandard, `{"amount": "0.25"}`, false),
			charge("seats", chargemodel.KindPackage, `{"amount": "100", "free_units": 10, "package_size": 10}`, false),
			charge("storage", chargemodel.KindStandard, `{"amount": "1"}`, true),
		),
		plan("lite", "1", false, 0),
		plan("prepaid", "30", true, 0),
		plan("trial", "30", true, 14),
	))
	require.NoError(t, err)

	now := fixedAt
	f := &fixture{store: subscription.NewMemoryStore(), catalog: catalog, now: &now}
	opts = append([]subscription.ServiceOption{
		subscription.WithLogger(logger.Discard()),
		subscription.WithClock(f.clock),
	}, opts...)
	f.lifecycle = subscription.NewService(f.store, catalog, opts...)
	return f
}

func (f *fixture) clock() time.Time { return *f.now }

func (f *fixture) biller(usage billing.UsageSource, sink billing.FeeSink, opts ...billing.Option) *billing.Service {
	opts = append([]billing.Option{billing.WithLogger(logger.Discard()), billing.WithClock(f.clock)}, opts...)
	return billing.NewService(f.store, f.catalog, usage, sink, opts...)
}

func (f *fixture) subscribe(t *testing.T, customer, planCode string) *subscription.Subscription {
	t.Helper()
	sub, err := f.lifecycle.CreateFromExternalRequest(context.Background(), subscription.CreateRequest{
		OrganizationID:     orgID,
		CustomerExternalID: customer,
		PlanCode:           planCode,
	})
	require.NoError(t, err)
	return sub
}

func eur(amount string) money.Money {
	return money.New(decimal.RequireFromString(amount), "EUR").Round()
}

func TestNewService_PanicsOnNil(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	usage, sink := usageStub{}, &recordingSink{}

	assert.Panics(t, func() { billing.NewService(nil, f.catalog, usage, sink) })
	assert.Panics(t, func() { billing.NewService(f.store, nil, usage, sink) })
	assert.Panics(t, func() { billing.NewService(f.store, f.catalog, nil, sink) })
	assert.Panics(t, func() { billing.NewService(f.store, f.catalog, usage, nil) })
}

func TestService_Bill(t *testing.T) {
	t.Parallel()

	usage := usageStub{units: map[string]decimal.Decimal{
		"api_calls": decimal.NewFromInt(1000),
		"seats":     decimal.NewFromInt(25),
		"storage":   decimal.NewFromInt(3),
	}}

	t.Run("active subscription bills pay in advance charges", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		sink := &recordingSink{}
		sub := f.subscribe(t, "cus_active", "usage")

		fees, err := f.biller(usage, sink).Bill(context.Background(), sub.ID)
		require.NoError(t, err)
		require.Len(t, fees, 1)

		assert.Equal(t, billing.FeeKindCharge, fees[0].Kind)
		assert.Equal(t, billing.TimingInAdvance, fees[0].Timing)
		assert.Equal(t, "storage", fees[0].BillableMetric)
		assert.True(t, decimal.NewFromInt(3).Equal(fees[0].Units))
		assert.Equal(t, eur("3"), fees[0].Amount)
		assert.Equal(t, 1, sink.runs())
	})

	t.Run("terminated subscription bills base fee and arrears charges", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		sink := &recordingSink{}
		sub := f.subscribe(t, "cus_terminated", "usage")
		_, err := f.lifecycle.Terminate(context.Background(), sub.ID)
		require.NoError(t, err)

		biller := f.biller(usage, sink)
		fees, err := biller.Bill(context.Background(), sub.ID)
		require.NoError(t, err)
		require.Len(t, fees, 3)

		assert.Equal(t, billing.FeeKindSubscription, fees[0].Kind)
		assert.Equal(t, uuid.Nil, fees[0].ChargeID)
		assert.Equal(t, eur("10"), fees[0].Amount)
		assert.Equal(t, "api_calls", fees[1].BillableMetric)
		assert.Equal(t, eur("250"), fees[1].Amount)
		assert.Equal(t, "seats", fees[2].BillableMetric)
		assert.Equal(t, eur("200"), fees[2].Amount)
		for _, fee := range fees {
			assert.Equal(t, billing.TimingArrears, fee.Timing)
			assert.Equal(t, sub.ID, fee.SubscriptionID)
			assert.Equal(t, sub.PlanID, fee.PlanID)
		}

		again, err := biller.Bill(context.Background(), sub.ID)
		require.NoError(t, err)
		require.Len(t, again, 3)
		for i := range fees {
			assert.Equal(t, fees[i].ID, again[i].ID, "fee ids are stable across runs")
		}
	})

	t.Run("zero usage yields zero fee", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		sub := f.subscribe(t, "cus_idle", "usage")

		fees, err := f.biller(usageStub{}, &recordingSink{}).Bill(context.Background(), sub.ID)
		require.NoError(t, err)
		require.Len(t, fees, 1)
		assert.True(t, fees[0].Amount.IsZero())
	})

	t.Run("pending subscription is not billable", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		sink := &recordingSink{}
		current := f.subscribe(t, "cus_pending", "usage")
		f.subscribe(t, "cus_pending", "lite")

		pending, err := f.lifecycle.NextSubscription(context.Background(), current.ID)
		require.NoError(t, err)
		require.True(t, pending.IsPending())

		_, err = f.biller(usage, sink).Bill(context.Background(), pending.ID)
		assert.ErrorIs(t, err, billing.ErrSubscriptionNotBillable)
		assert.Zero(t, sink.runs())
	})

	t.Run("pay in advance plan inside trial", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		sink := &recordingSink{}
		sub := f.subscribe(t, "cus_trial", "trial")
		biller := f.biller(usage, sink)

		fees, err := biller.Bill(context.Background(), sub.ID)
		require.NoError(t, err)
		assert.Empty(t, fees)
		assert.Zero(t, sink.runs())

		*f.now = fixedAt.AddDate(0, 0, 14)
		fees, err = biller.Bill(context.Background(), sub.ID)
		require.NoError(t, err)
		require.Len(t, fees, 1)
		assert.Equal(t, billing.FeeKindSubscription, fees[0].Kind)
		assert.Equal(t, eur("30"), fees[0].Amount)
	})

	t.Run("unknown subscription", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		_, err := f.biller(usage, &recordingSink{}).Bill(context.Background(), uuid.New())
		assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
	})

	t.Run("usage source failure", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		sub := f.subscribe(t, "cus_usage_err", "usage")

		_, err := f.biller(usageStub{err: errors.New("meter offline")}, &recordingSink{}).Bill(context.Background(), sub.ID)
		assert.ErrorIs(t, err, billing.ErrUsageUnavailable)
		assert.ErrorContains(t, err, "meter offline")
	})

	t.Run("fee sink failure", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		sub := f.subscribe(t, "cus_sink_err", "usage")

		_, err := f.biller(usage, &recordingSink{err: errors.New("ledger down")}).Bill(context.Background(), sub.ID)
		assert.ErrorIs(t, err, billing.ErrFeeSinkFailed)
	})
}

func TestService_Metrics(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	reg := prometheus.NewRegistry()
	metrics := billing.NewMetrics(reg)
	usage := usageStub{units: map[string]decimal.Decimal{"storage": decimal.NewFromInt(1)}}
	biller := f.biller(usage, &recordingSink{}, billing.WithMetrics(metrics))

	active := f.subscribe(t, "cus_metrics", "usage")
	_, err := biller.Bill(context.Background(), active.ID)
	require.NoError(t, err)

	f.subscribe(t, "cus_metrics", "lite")
	pending, err := f.lifecycle.NextSubscription(context.Background(), active.ID)
	require.NoError(t, err)
	_, err = biller.Bill(context.Background(), pending.ID)
	require.Error(t, err)

	_, err = biller.Bill(context.Background(), uuid.New())
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("billed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FeesTotal.WithLabelValues("charge", "in_advance")))
}
