package validator

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"
)

// Rule checks one constraint and returns the violation, or nil when the
// constraint holds.
type Rule func() *ValidationError

// Numeric is the set of types MinNum compares.
type Numeric interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Apply runs every rule and returns all violations, or nil.
func Apply(rules ...Rule) error {
	var verrs ValidationErrors
	for _, r := range rules {
		if v := r(); v != nil {
			verrs = append(verrs, *v)
		}
	}
	if len(verrs) == 0 {
		return nil
	}
	return verrs
}

// Merge flattens the results of several Apply calls. The first error that
// is not a validation error is returned unchanged.
func Merge(errs ...error) error {
	var merged ValidationErrors
	for _, err := range errs {
		if err == nil {
			continue
		}
		verrs := ExtractValidationErrors(err)
		if verrs == nil {
			return err
		}
		merged = append(merged, verrs...)
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

// Check wraps an arbitrary predicate, for cross-field constraints.
func Check(field, code, message string, ok func() bool) Rule {
	return func() *ValidationError {
		if ok() {
			return nil
		}
		return &ValidationError{Field: field, Code: code, Message: message}
	}
}

func RequiredString(field, value string) Rule {
	return Check(field, "required", "field is required", func() bool {
		return strings.TrimSpace(value) != ""
	})
}

func MinNum[T Numeric](field string, value, min T) Rule {
	return Check(field, "min", fmt.Sprintf("must be at least %v", min), func() bool {
		return value >= min
	})
}

// ValidCurrencyCode accepts ISO 4217 codes known to golang.org/x/text,
// in any letter case.
func ValidCurrencyCode(field, value string) Rule {
	return Check(field, "invalid_currency", "must be a valid ISO 4217 currency code", func() bool {
		if len(strings.TrimSpace(value)) != 3 {
			return false
		}
		_, err := currency.ParseISO(value)
		return err == nil
	})
}
