package subscription_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/chargemodel"
	"github.com/dmitrymomot/billingkit/svc/subscription"
)

type mockPlansSource struct {
	mock.Mock
}

func (m *mockPlansSource) Load(ctx context.Context) ([]subscription.Plan, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]subscription.Plan), args.Error(1)
}

const catalogYAML = `
plans:
  - organization_id: 8f7c5d0e-2a57-4a4e-9d5b-0c3f0e7e4a11
    code: starter
    name: Starter
    interval: monthly
    amount: "10.00"
    currency: eur
    pay_in_advance: true
    trial_period: 14
    charges:
      - billable_metric: api_calls
        charge_model: graduated
        properties:
          graduated_ranges:
            - {from_value: 0, to_value: 10, flat_amount: "0", per_unit_amount: "2"}
            - {from_value: 11, to_value: null, flat_amount: "5", per_unit_amount: "1"}
      - billable_metric: storage_gb
        charge_model: standard
        properties:
          amount: "0.10"
  - id: 0b6f1a4e-7d0c-4c4b-9a49-3d2b8f0f5c21
    organization_id: 8f7c5d0e-2a57-4a4e-9d5b-0c3f0e7e4a11
    code: business
    interval: yearly
    amount: "990"
    currency: EUR
`

func TestCatalog_YAML(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	catalog, err := subscription.NewCatalog(ctx, subscription.NewYAMLSource(strings.NewReader(catalogYAML)))
	require.NoError(t, err)

	starter, err := catalog.FindPlan(ctx, orgID, "starter")
	require.NoError(t, err)
	assert.Equal(t, subscription.PlanID(orgID, "starter"), starter.ID, "missing ids are derived")
	assert.Equal(t, "EUR", starter.Amount.Currency)
	assert.True(t, decimal.RequireFromString("10").Equal(starter.Amount.Amount))
	assert.True(t, starter.PayInAdvance)
	assert.True(t, starter.HasTrial())
	require.Len(t, starter.Charges, 2)
	assert.Equal(t, chargemodel.KindGraduated, starter.Charges[0].Model)
	assert.NotEqual(t, uuid.Nil, starter.Charges[0].ID)

	model, err := starter.Charges[0].Parse()
	require.NoError(t, err)
	got := chargemodel.Apply(model, decimal.NewFromInt(15))
	assert.True(t, decimal.NewFromInt(30).Equal(got), "got %s", got)

	business, err := catalog.GetPlan(ctx, uuid.MustParse("0b6f1a4e-7d0c-4c4b-9a49-3d2b8f0f5c21"))
	require.NoError(t, err)
	assert.Equal(t, "business", business.Code)
	assert.Equal(t, subscription.IntervalYearly, business.Interval)

	codes := []string{}
	for _, p := range catalog.Plans(orgID) {
		codes = append(codes, p.Code)
	}
	assert.Equal(t, []string{"business", "starter"}, codes)
	assert.Empty(t, catalog.Plans(uuid.New()))
}

func TestCatalog_YAMLFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o600))

	catalog, err := subscription.NewCatalog(context.Background(), subscription.NewYAMLFileSource(path))
	require.NoError(t, err)
	assert.Len(t, catalog.Plans(orgID), 2)

	_, err = subscription.NewCatalog(context.Background(), subscription.NewYAMLFileSource(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.ErrorIs(t, err, subscription.ErrFailedToLoadPlans)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCatalog_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("source failure", func(t *testing.T) {
		t.Parallel()
		src := new(mockPlansSource)
		boom := errors.New("boom")
		src.On("Load", mock.Anything).Return(nil, boom)

		_, err := subscription.NewCatalog(ctx, src)
		assert.ErrorIs(t, err, subscription.ErrFailedToLoadPlans)
		assert.ErrorIs(t, err, boom)
		src.AssertExpectations(t)
	})

	t.Run("invalid and duplicate plans", func(t *testing.T) {
		t.Parallel()
		bad := testPlan("bad", "1", "XXX1", false)
		_, err := subscription.NewCatalog(ctx, subscription.NewInMemSource(
			testPlan("basic", "1", "EUR", false),
			testPlan("basic", "2", "EUR", false),
			bad,
		))
		require.Error(t, err)
		assert.ErrorIs(t, err, subscription.ErrInvalidPlan)
		assert.Contains(t, err.Error(), `duplicate plan code "basic"`)
		assert.Contains(t, err.Error(), `plan "bad"`)
	})

	t.Run("bad yaml", func(t *testing.T) {
		t.Parallel()
		_, err := subscription.NewCatalog(ctx, subscription.NewYAMLSource(strings.NewReader("plans: [")))
		assert.ErrorIs(t, err, subscription.ErrFailedToLoadPlans)

		_, err = subscription.NewCatalog(ctx, subscription.NewYAMLSource(strings.NewReader(`
plans:
  - code: x
    amount: "ten"
`)))
		assert.ErrorIs(t, err, subscription.ErrFailedToLoadPlans)
	})

	t.Run("invalid charge properties", func(t *testing.T) {
		t.Parallel()
		_, err := subscription.NewCatalog(ctx, subscription.NewYAMLSource(strings.NewReader(`
plans:
  - code: metered
    interval: monthly
    amount: "0"
    currency: USD
    charges:
      - billable_metric: events
        charge_model: package
        properties: {amount: "-5", free_units: 0, package_size: 0}
`)))
		assert.ErrorIs(t, err, subscription.ErrInvalidPlan)
		assert.Contains(t, err.Error(), "charges[0]")
	})

	t.Run("lookups", func(t *testing.T) {
		t.Parallel()
		catalog, err := subscription.NewCatalog(ctx, subscription.NewInMemSource(testPlan("basic", "1", "EUR", false)))
		require.NoError(t, err)

		_, err = catalog.FindPlan(ctx, orgID, "pro")
		assert.ErrorIs(t, err, subscription.ErrPlanNotFound)
		_, err = catalog.GetPlan(ctx, uuid.New())
		assert.ErrorIs(t, err, subscription.ErrPlanNotFound)

		p, err := catalog.FindPlan(ctx, orgID, " basic ")
		require.NoError(t, err)
		assert.Equal(t, "basic", p.Code)
	})
}
