package subscription

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/billingkit/pkg/chargemodel"
	"github.com/dmitrymomot/billingkit/pkg/money"
	"github.com/dmitrymomot/billingkit/pkg/validator"
)

// Interval is the billing period length of a plan.
type Interval string

const (
	IntervalWeekly  Interval = "weekly"
	IntervalMonthly Interval = "monthly"
	IntervalYearly  Interval = "yearly"
)

func (i Interval) Valid() bool {
	switch i {
	case IntervalWeekly, IntervalMonthly, IntervalYearly:
		return true
	}
	return false
}

// periodsPerYear is used to normalize plan amounts for comparison and reporting.
func (i Interval) periodsPerYear() int64 {
	switch i {
	case IntervalWeekly:
		return 52
	case IntervalMonthly:
		return 12
	default:
		return 1
	}
}

// Charge is a usage-based pricing rule attached to a plan.
// Properties hold the raw scheme parameters for Model.
type Charge struct {
	ID             uuid.UUID
	BillableMetric string
	Model          chargemodel.Kind
	Properties     json.RawMessage
	PayInAdvance   bool
}

// Parse returns the validated pricing scheme of the charge.
func (c Charge) Parse() (chargemodel.Model, error) {
	return chargemodel.Parse(c.Model, c.Properties)
}

// Plan is an immutable billing definition. Subscriptions reference plans by ID
// and the lifecycle engine never mutates them.
type Plan struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Code           string // unique per organization
	Name           string
	Interval       Interval
	Amount         money.Money
	PayInAdvance   bool
	TrialPeriod    int // days
	Charges        []Charge
}

func (p Plan) HasTrial() bool {
	return p.TrialPeriod > 0
}

// YearlyAmount returns the base amount scaled to one year.
func (p Plan) YearlyAmount() money.Money {
	return p.Amount.Mul(decimal.NewFromInt(p.Interval.periodsPerYear()))
}

// Validate checks the plan definition and every charge attached to it.
// All violations are reported together.
func (p Plan) Validate() error {
	err := validator.Apply(
		validator.RequiredString("code", p.Code),
		validator.ValidCurrencyCode("currency", p.Amount.Currency),
		validator.Check("interval", "invalid_interval", "interval must be weekly, monthly or yearly", p.Interval.Valid),
		validator.Check("amount", "invalid_amount", "amount must not be negative", func() bool {
			return !p.Amount.Amount.IsNegative()
		}),
		validator.MinNum("trial_period", p.TrialPeriod, 0),
	)

	errs := []error{err}
	for i, c := range p.Charges {
		errs = append(errs, chargeErrors(i, c))
	}

	if merged := validator.Merge(errs...); merged != nil {
		return errors.Join(ErrInvalidPlan, fmt.Errorf("plan %q: %w", p.Code, merged))
	}
	return nil
}

func chargeErrors(i int, c Charge) error {
	prefix := fmt.Sprintf("charges[%d]", i)

	_, err := c.Parse()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, chargemodel.ErrUnknownModel):
		return validator.ValidationErrors{{
			Field:   prefix + ".charge_model",
			Code:    "invalid_charge_model",
			Message: err.Error(),
		}}
	}

	if verrs := validator.ExtractValidationErrors(err); verrs != nil {
		return verrs.Prefixed(prefix)
	}
	return err
}
