package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/billingkit/pkg/chargemodel"
	"github.com/dmitrymomot/billingkit/pkg/money"
)

// yamlCatalog is the on-disk plan catalog format:
//
//	plans:
//	  - organization_id: 5b0e...
//	    code: starter
//	    interval: monthly
//	    amount: "10.00"
//	    currency: EUR
//	    pay_in_advance: true
//	    charges:
//	      - billable_metric: api_calls
//	        charge_model: graduated
//	        properties:
//	          graduated_ranges:
//	            - {from_value: 0, to_value: 100, flat_amount: "0", per_unit_amount: "0.01"}
//	            - {from_value: 101, to_value: null, flat_amount: "5", per_unit_amount: "0.005"}
type yamlCatalog struct {
	Plans []yamlPlan `yaml:"plans"`
}

type yamlPlan struct {
	ID             uuid.UUID    `yaml:"id"`
	OrganizationID uuid.UUID    `yaml:"organization_id"`
	Code           string       `yaml:"code"`
	Name           string       `yaml:"name"`
	Interval       Interval     `yaml:"interval"`
	Amount         string       `yaml:"amount"`
	Currency       string       `yaml:"currency"`
	PayInAdvance   bool         `yaml:"pay_in_advance"`
	TrialPeriod    int          `yaml:"trial_period"`
	Charges        []yamlCharge `yaml:"charges"`
}

type yamlCharge struct {
	ID             uuid.UUID        `yaml:"id"`
	BillableMetric string           `yaml:"billable_metric"`
	ChargeModel    chargemodel.Kind `yaml:"charge_model"`
	PayInAdvance   bool             `yaml:"pay_in_advance"`
	Properties     any              `yaml:"properties"`
}

type yamlSource struct {
	open func() (io.ReadCloser, error)
	name string
}

// NewYAMLFileSource reads the plan catalog from a YAML file on every Load.
func NewYAMLFileSource(path string) PlansListSource {
	return &yamlSource{
		name: path,
		open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// NewYAMLSource reads the plan catalog from r once, on the first Load.
func NewYAMLSource(r io.Reader) PlansListSource {
	return &yamlSource{
		name: "reader",
		open: func() (io.ReadCloser, error) { return io.NopCloser(r), nil },
	}
}

func (s *yamlSource) Load(context.Context) ([]Plan, error) {
	rc, err := s.open()
	if err != nil {
		return nil, fmt.Errorf("open plan catalog %s: %w", s.name, err)
	}
	defer rc.Close()

	var doc yamlCatalog
	if err := yaml.NewDecoder(rc).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode plan catalog %s: %w", s.name, err)
	}

	plans := make([]Plan, 0, len(doc.Plans))
	for i, yp := range doc.Plans {
		p, err := yp.plan()
		if err != nil {
			return nil, fmt.Errorf("plan catalog %s: plans[%d]: %w", s.name, i, err)
		}
		plans = append(plans, p)
	}
	return plans, nil
}

func (yp yamlPlan) plan() (Plan, error) {
	amount := decimal.Zero
	if yp.Amount != "" {
		var err error
		if amount, err = decimal.NewFromString(yp.Amount); err != nil {
			return Plan{}, fmt.Errorf("amount: %w", err)
		}
	}

	p := Plan{
		ID:             yp.ID,
		OrganizationID: yp.OrganizationID,
		Code:           yp.Code,
		Name:           yp.Name,
		Interval:       yp.Interval,
		Amount:         money.New(amount, yp.Currency),
		PayInAdvance:   yp.PayInAdvance,
		TrialPeriod:    yp.TrialPeriod,
		Charges:        make([]Charge, 0, len(yp.Charges)),
	}

	for j, yc := range yp.Charges {
		props, err := json.Marshal(yc.Properties)
		if err != nil {
			return Plan{}, fmt.Errorf("charges[%d].properties: %w", j, err)
		}
		id := yc.ID
		if id == uuid.Nil {
			id = uuid.NewSHA1(PlanID(yp.OrganizationID, yp.Code), []byte(yc.BillableMetric))
		}
		p.Charges = append(p.Charges, Charge{
			ID:             id,
			BillableMetric: yc.BillableMetric,
			Model:          yc.ChargeModel,
			Properties:     props,
			PayInAdvance:   yc.PayInAdvance,
		})
	}
	return p, nil
}
