package validator

import (
	"errors"
	"strings"
)

// ErrValidationFailed matches any ValidationErrors value via errors.Is.
var ErrValidationFailed = errors.New("validation failed")

// ValidationError is one violated rule. Code is stable and machine readable
// ("invalid_amount"); Message is for humans.
type ValidationError struct {
	Field   string
	Code    string
	Message string
}

// ValidationErrors is the error returned by Apply. Entries keep rule order.
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ErrValidationFailed.Error()
	}

	var b strings.Builder
	b.WriteString(ErrValidationFailed.Error())
	for i, e := range ve {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(e.Field)
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (ve ValidationErrors) Is(target error) bool {
	return target == ErrValidationFailed
}

func (ve ValidationErrors) Has(field string) bool {
	for _, e := range ve {
		if e.Field == field {
			return true
		}
	}
	return false
}

// Messages returns the messages reported for field.
func (ve ValidationErrors) Messages(field string) []string {
	var out []string
	for _, e := range ve {
		if e.Field == field {
			out = append(out, e.Message)
		}
	}
	return out
}

func (ve ValidationErrors) Codes() []string {
	out := make([]string, 0, len(ve))
	for _, e := range ve {
		out = append(out, e.Code)
	}
	return out
}

// Fields returns the distinct failing fields in first-seen order.
func (ve ValidationErrors) Fields() []string {
	var out []string
	seen := make(map[string]struct{}, len(ve))
	for _, e := range ve {
		if _, ok := seen[e.Field]; !ok {
			seen[e.Field] = struct{}{}
			out = append(out, e.Field)
		}
	}
	return out
}

// Prefixed returns a copy with every field nested under prefix,
// so "amount" becomes "charges[0].amount".
func (ve ValidationErrors) Prefixed(prefix string) ValidationErrors {
	out := make(ValidationErrors, len(ve))
	for i, e := range ve {
		e.Field = prefix + "." + e.Field
		out[i] = e
	}
	return out
}

// ExtractValidationErrors finds ValidationErrors anywhere in err's chain.
func ExtractValidationErrors(err error) ValidationErrors {
	var verrs ValidationErrors
	if err != nil && errors.As(err, &verrs) {
		return verrs
	}
	return nil
}

func IsValidationError(err error) bool {
	return ExtractValidationErrors(err) != nil
}
