package chargemodel

import "github.com/shopspring/decimal"

// Standard bills every unit at the same rate.
type Standard struct {
	Amount decimal.Decimal
}

func (Standard) Kind() Kind { return KindStandard }
func (Standard) sealed()    {}

func (s Standard) apply(quantity decimal.Decimal) decimal.Decimal {
	return quantity.Mul(s.Amount)
}
