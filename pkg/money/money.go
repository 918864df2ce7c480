package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Money is an exact monetary value in a single ISO 4217 currency.
// Amount is kept in major units (10.99 for $10.99) with arbitrary precision,
// rounding happens only when a caller asks for it.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// New returns Money with the currency code normalized to upper case.
func New(amount decimal.Decimal, code string) Money {
	return Money{Amount: amount, Currency: strings.ToUpper(strings.TrimSpace(code))}
}

// FromCents builds Money from an amount expressed in the currency's minor unit.
func FromCents(cents int64, code string) Money {
	m := New(decimal.Zero, code)
	m.Amount = decimal.New(cents, -int32(m.scale()))
	return m
}

// Zero returns a zero amount in the given currency.
func Zero(code string) Money {
	return New(decimal.Zero, code)
}

func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

// SameCurrency reports whether both values are expressed in the same currency.
func (m Money) SameCurrency(o Money) bool {
	return m.Currency == o.Currency
}

// Compare returns -1, 0 or +1. Amounts in different currencies are never converted.
func (m Money) Compare(o Money) (int, error) {
	if !m.SameCurrency(o) {
		return 0, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	return m.Amount.Cmp(o.Amount), nil
}

func (m Money) Add(o Money) (Money, error) {
	if !m.SameCurrency(o) {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	return Money{Amount: m.Amount.Add(o.Amount), Currency: m.Currency}, nil
}

// Mul scales the amount by a quantity.
func (m Money) Mul(q decimal.Decimal) Money {
	return Money{Amount: m.Amount.Mul(q), Currency: m.Currency}
}

// Round rounds the amount half away from zero to the currency's standard scale.
func (m Money) Round() Money {
	return Money{Amount: m.Amount.Round(int32(m.scale())), Currency: m.Currency}
}

// Cents returns the amount in minor units after rounding.
func (m Money) Cents() int64 {
	return m.Round().Amount.Shift(int32(m.scale())).IntPart()
}

func (m Money) String() string {
	return m.Amount.StringFixed(int32(m.scale())) + " " + m.Currency
}

// scale falls back to two decimals for codes x/text does not know.
func (m Money) scale() int {
	unit, err := currency.ParseISO(m.Currency)
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return scale
}

// ValidCurrency reports whether code is a recognized ISO 4217 currency code.
func ValidCurrency(code string) bool {
	if len(strings.TrimSpace(code)) != 3 {
		return false
	}
	_, err := currency.ParseISO(code)
	return err == nil
}
