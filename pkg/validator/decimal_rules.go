package validator

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimal rules work on raw property values as they come out of a JSON
// document decoded into `any`: json.Number, float64, int, string or nil.
// Every rule checks exactly one thing so a violated constraint produces a
// single error entry: Present reports a missing value, DecimalValue an
// unparseable one, and the sign/integer rules only judge parseable values.

// ParseDecimal converts a raw value into a decimal.
// Strings such as "NaN" or "Infinity" are rejected since decimals are always finite.
func ParseDecimal(raw any) (decimal.Decimal, bool) {
	switch v := raw.(type) {
	case decimal.Decimal:
		return v, true
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		return d, err == nil
	case float64:
		d := decimal.NewFromFloat(v)
		return d, true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	default:
		return decimal.Zero, false
	}
}

func isBlank(raw any) bool {
	if raw == nil {
		return true
	}
	if s, ok := raw.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// Present validates that a raw value is set.
func Present(field string, raw any, code string) Rule {
	return Check(field, code, "field is required", func() bool { return !isBlank(raw) })
}

// DecimalValue validates that a set value parses as a finite decimal.
func DecimalValue(field string, raw any, code string) Rule {
	return Check(field, code, "must be a finite decimal number", func() bool {
		if isBlank(raw) {
			return true
		}
		_, ok := ParseDecimal(raw)
		return ok
	})
}

// PositiveDecimal validates that a parseable value is strictly greater than zero.
func PositiveDecimal(field string, raw any, code string) Rule {
	return Check(field, code, "must be greater than zero", func() bool {
		d, ok := ParseDecimal(raw)
		return !ok || d.IsPositive()
	})
}

// NonNegativeDecimal validates that a parseable value is zero or greater.
func NonNegativeDecimal(field string, raw any, code string) Rule {
	return Check(field, code, "cannot be negative", func() bool {
		d, ok := ParseDecimal(raw)
		return !ok || !d.IsNegative()
	})
}

// IntegerValue validates that a parseable value has no fractional part.
func IntegerValue(field string, raw any, code string) Rule {
	return Check(field, code, "must be a whole number", func() bool {
		d, ok := ParseDecimal(raw)
		return !ok || d.Equal(d.Truncate(0))
	})
}
