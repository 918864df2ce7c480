package chargemodel

import "github.com/shopspring/decimal"

// Package bills whole bundles of PackageSize units at Amount per bundle.
// The first FreeUnits units are never billed; a started bundle is billed in full.
type Package struct {
	Amount      decimal.Decimal
	FreeUnits   decimal.Decimal
	PackageSize decimal.Decimal
}

func (Package) Kind() Kind { return KindPackage }
func (Package) sealed()    {}

func (p Package) apply(quantity decimal.Decimal) decimal.Decimal {
	return walk(p.ranges(quantity), quantity)
}

// ranges lays the bundles out as graduated tiers: a free tier up to
// FreeUnits, one tier spanning the bundles fully below quantity and one for
// the bundle containing it. Bundle prices are the tiers' flat amounts.
func (p Package) ranges(quantity decimal.Decimal) []GraduatedRange {
	free := p.FreeUnits
	out := []GraduatedRange{{FromValue: decimal.Zero, ToValue: &free}}
	if quantity.LessThanOrEqual(free) || !p.PackageSize.IsPositive() {
		return out
	}

	bundles := quantity.Sub(free).Div(p.PackageSize).Ceil()
	if full := bundles.Sub(one); full.IsPositive() {
		to := free.Add(full.Mul(p.PackageSize))
		out = append(out, GraduatedRange{FromValue: free.Add(one), ToValue: &to, FlatAmount: full.Mul(p.Amount)})
	}

	from := free.Add(bundles.Sub(one).Mul(p.PackageSize)).Add(one)
	last := free.Add(bundles.Mul(p.PackageSize))
	return append(out, GraduatedRange{FromValue: from, ToValue: &last, FlatAmount: p.Amount})
}
