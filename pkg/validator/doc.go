// Package validator provides small declarative validation rules that collect
// every failure instead of stopping at the first one.
//
// A Rule pairs a Check func with the ValidationError reported when the check
// fails. Apply evaluates all rules and returns a ValidationErrors value (which
// implements error) or nil:
//
//	err := validator.Apply(
//	    validator.RequiredString("plan_code", code),
//	    validator.ValidCurrencyCode("amount_currency", currency),
//	    validator.Present("amount", raw, "invalid_amount"),
//	    validator.DecimalValue("amount", raw, "invalid_amount"),
//	)
//	if verrs := validator.ExtractValidationErrors(err); verrs != nil {
//	    for _, code := range verrs.Codes() {
//	        // ...
//	    }
//	}
//
// Decimal rules accept raw values decoded from JSON (json.Number, float64,
// string or nil) and parse them with shopspring/decimal, so amounts never pass
// through binary floating point. Each rule checks exactly one constraint:
// a missing value is reported only by Present, an unparseable one only by
// DecimalValue.
//
// ValidationErrors matches ErrValidationFailed with errors.Is, and can be
// recovered from wrapped errors with ExtractValidationErrors.
package validator
