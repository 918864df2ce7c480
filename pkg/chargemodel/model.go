package chargemodel

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind is the pricing scheme tag stored alongside a charge.
type Kind string

const (
	KindStandard  Kind = "standard"
	KindGraduated Kind = "graduated"
	KindPackage   Kind = "package"
)

// Valid reports whether k names one of the supported schemes.
func (k Kind) Valid() bool {
	switch k {
	case KindStandard, KindGraduated, KindPackage:
		return true
	}
	return false
}

// Model is the parsed, validated parameter set of one pricing scheme.
// The set of implementations is closed: only Standard, Graduated and Package
// satisfy it, so every switch over a Model lists all three.
type Model interface {
	Kind() Kind
	sealed()
}

var one = decimal.NewFromInt(1)

// Apply computes the billable amount for quantity units under model m.
// It is pure and expects parameters that already passed Validate.
// A zero quantity always yields zero, flat fees included.
func Apply(m Model, quantity decimal.Decimal) decimal.Decimal {
	switch m := m.(type) {
	case Standard:
		return m.apply(quantity)
	case Graduated:
		return m.apply(quantity)
	case Package:
		return m.apply(quantity)
	default:
		panic(fmt.Sprintf("chargemodel: unsupported model %T", m))
	}
}
