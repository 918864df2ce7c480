package chargemodel

import "github.com/shopspring/decimal"

// GraduatedRange is one tier of a graduated scheme.
// ToValue is nil for the open-ended last tier.
type GraduatedRange struct {
	FromValue     decimal.Decimal
	ToValue       *decimal.Decimal
	FlatAmount    decimal.Decimal
	PerUnitAmount decimal.Decimal
}

// Graduated bills each tier's units at that tier's marginal rate and adds
// the tier's flat amount once the tier is reached.
type Graduated struct {
	Ranges []GraduatedRange
}

func (Graduated) Kind() Kind { return KindGraduated }
func (Graduated) sealed()    {}

func (g Graduated) apply(quantity decimal.Decimal) decimal.Decimal {
	return walk(g.Ranges, quantity)
}

// walk accumulates flat and per-unit amounts tier by tier up to the tier
// containing quantity.
func walk(ranges []GraduatedRange, quantity decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, r := range ranges {
		if !quantity.IsZero() {
			total = total.Add(r.FlatAmount)
		}
		total = total.Add(r.units(quantity).Mul(r.PerUnitAmount))

		// quantity falls inside this tier
		if r.ToValue == nil || r.ToValue.GreaterThanOrEqual(quantity) {
			break
		}
	}
	return total
}

// units returns how many units of quantity are billed in r.
// The first tier has an implicit floor of zero, so its lower bound counts as 1
// when the tier is fully consumed; later tiers include their from_value unit.
// Historical invoices depend on this exact arithmetic.
func (r GraduatedRange) units(quantity decimal.Decimal) decimal.Decimal {
	if r.ToValue != nil && quantity.GreaterThanOrEqual(*r.ToValue) {
		from := r.FromValue
		if from.IsZero() {
			from = one
		}
		return r.ToValue.Sub(from).Add(one)
	}

	if r.FromValue.IsZero() {
		return quantity
	}
	return quantity.Sub(r.FromValue).Add(one)
}
