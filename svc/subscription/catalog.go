package subscription

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// PlansListSource defines how plans are loaded into a Catalog.
type PlansListSource interface {
	Load(ctx context.Context) ([]Plan, error)
}

type inMemSource struct {
	plans []Plan
}

// NewInMemSource returns a Source serving copies of the given plans.
func NewInMemSource(plans ...Plan) PlansListSource {
	return &inMemSource{plans: clonePlans(plans)}
}

func (s *inMemSource) Load(context.Context) ([]Plan, error) {
	return clonePlans(s.plans), nil
}

// Catalog is an immutable, validated set of plans implementing PlanFinder.
type Catalog struct {
	byID   map[uuid.UUID]Plan
	byCode map[planKey]uuid.UUID
}

type planKey struct {
	org  uuid.UUID
	code string
}

// NewCatalog loads and validates plans from src. Plans without an ID get a
// stable one derived from their organization and code.
func NewCatalog(ctx context.Context, src PlansListSource) (*Catalog, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", ErrFailedToLoadPlans)
	}

	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	c := &Catalog{
		byID:   make(map[uuid.UUID]Plan, len(plans)),
		byCode: make(map[planKey]uuid.UUID, len(plans)),
	}

	var errs []error
	for _, p := range plans {
		if p.ID == uuid.Nil {
			p.ID = PlanID(p.OrganizationID, p.Code)
		}
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		key := planKey{org: p.OrganizationID, code: normalizeCode(p.Code)}
		if _, dup := c.byCode[key]; dup {
			errs = append(errs, fmt.Errorf("%w: duplicate plan code %q", ErrInvalidPlan, p.Code))
			continue
		}
		if _, dup := c.byID[p.ID]; dup {
			errs = append(errs, fmt.Errorf("%w: duplicate plan id %s", ErrInvalidPlan, p.ID))
			continue
		}
		c.byID[p.ID] = p
		c.byCode[key] = p.ID
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

// PlanID derives the ID assigned to plans declared without one.
func PlanID(organizationID uuid.UUID, code string) uuid.UUID {
	return uuid.NewSHA1(organizationID, []byte(normalizeCode(code)))
}

func (c *Catalog) FindPlan(_ context.Context, organizationID uuid.UUID, code string) (*Plan, error) {
	id, ok := c.byCode[planKey{org: organizationID, code: normalizeCode(code)}]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPlanNotFound, code)
	}
	p := c.byID[id]
	return &p, nil
}

func (c *Catalog) GetPlan(_ context.Context, id uuid.UUID) (*Plan, error) {
	p, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}
	return &p, nil
}

// Len returns the number of plans across all organizations.
func (c *Catalog) Len() int {
	return len(c.byID)
}

// Plans returns every plan of the organization ordered by code.
func (c *Catalog) Plans(organizationID uuid.UUID) []Plan {
	var out []Plan
	for _, p := range c.byID {
		if p.OrganizationID == organizationID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b Plan) int { return strings.Compare(a.Code, b.Code) })
	return out
}

func normalizeCode(code string) string {
	return strings.TrimSpace(code)
}

func clonePlans(plans []Plan) []Plan {
	out := make([]Plan, len(plans))
	for i, p := range plans {
		p.Charges = slices.Clone(p.Charges)
		for j := range p.Charges {
			p.Charges[j].Properties = slices.Clone(p.Charges[j].Properties)
		}
		out[i] = p
	}
	return out
}
