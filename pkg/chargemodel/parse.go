package chargemodel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/billingkit/pkg/validator"
)

// Validate checks the structure and numeric sanity of raw scheme properties.
// On failure the returned error wraps ErrInvalidProperties and a
// validator.ValidationErrors listing every violated rule.
func Validate(kind Kind, properties json.RawMessage) error {
	_, err := Parse(kind, properties)
	return err
}

// Parse validates raw scheme properties and converts them into a Model.
//
// Expected shapes:
//
//	standard:  {"amount": "0.25"}
//	graduated: [{"from_value": 0, "to_value": 10, "flat_amount": "0", "per_unit_amount": "2"}, ...]
//	           or {"graduated_ranges": [...]}
//	package:   {"amount": "100", "free_units": 10, "package_size": 10}
func Parse(kind Kind, properties json.RawMessage) (Model, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, kind)
	}

	doc, err := decode(properties)
	if err != nil {
		return nil, invalidProperties(validator.ValidationErrors{{
			Field:   "properties",
			Code:    CodeInvalidProperties,
			Message: "properties must be a JSON document",
		}})
	}

	switch kind {
	case KindStandard:
		return parseStandard(doc)
	case KindGraduated:
		return parseGraduated(doc)
	case KindPackage:
		return parsePackage(doc)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownModel, kind)
}

func decode(raw json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func invalidProperties(err error) error {
	return errors.Join(ErrInvalidProperties, err)
}

func object(doc any) map[string]any {
	if obj, ok := doc.(map[string]any); ok {
		return obj
	}
	// a missing document validates as an empty object so each field reports itself
	return map[string]any{}
}

func mustDecimal(raw any) decimal.Decimal {
	d, _ := validator.ParseDecimal(raw)
	return d
}

func parseStandard(doc any) (Model, error) {
	amount := object(doc)["amount"]

	if err := validator.Apply(
		validator.Present("amount", amount, CodeInvalidAmount),
		validator.DecimalValue("amount", amount, CodeInvalidAmount),
		validator.PositiveDecimal("amount", amount, CodeInvalidAmount),
	); err != nil {
		return nil, invalidProperties(err)
	}

	return Standard{Amount: mustDecimal(amount)}, nil
}

func parsePackage(doc any) (Model, error) {
	obj := object(doc)
	amount, freeUnits, size := obj["amount"], obj["free_units"], obj["package_size"]

	if err := validator.Apply(
		validator.Present("amount", amount, CodeInvalidAmount),
		validator.DecimalValue("amount", amount, CodeInvalidAmount),
		validator.NonNegativeDecimal("amount", amount, CodeInvalidAmount),

		validator.Present("free_units", freeUnits, CodeInvalidFreeUnits),
		validator.DecimalValue("free_units", freeUnits, CodeInvalidFreeUnits),
		validator.IntegerValue("free_units", freeUnits, CodeInvalidFreeUnits),
		validator.NonNegativeDecimal("free_units", freeUnits, CodeInvalidFreeUnits),

		validator.Present("package_size", size, CodeInvalidPackageSize),
		validator.DecimalValue("package_size", size, CodeInvalidPackageSize),
		validator.IntegerValue("package_size", size, CodeInvalidPackageSize),
		validator.PositiveDecimal("package_size", size, CodeInvalidPackageSize),
	); err != nil {
		return nil, invalidProperties(err)
	}

	return Package{
		Amount:      mustDecimal(amount),
		FreeUnits:   mustDecimal(freeUnits),
		PackageSize: mustDecimal(size),
	}, nil
}

func graduatedRanges(doc any) []any {
	switch v := doc.(type) {
	case []any:
		return v
	case map[string]any:
		ranges, _ := v["graduated_ranges"].([]any)
		return ranges
	}
	return nil
}

func parseGraduated(doc any) (Model, error) {
	ranges := graduatedRanges(doc)
	if len(ranges) == 0 {
		return nil, invalidProperties(validator.ValidationErrors{{
			Field:   "graduated_ranges",
			Code:    CodeMissingGraduatedRange,
			Message: "at least one range is required",
		}})
	}

	rules := make([]validator.Rule, 0, len(ranges)*8)
	for i := range ranges {
		rules = append(rules, graduatedRangeRules(i, ranges)...)
	}
	if err := validator.Apply(rules...); err != nil {
		return nil, invalidProperties(err)
	}

	model := Graduated{Ranges: make([]GraduatedRange, 0, len(ranges))}
	for _, raw := range ranges {
		obj := object(raw)
		r := GraduatedRange{
			FromValue:     mustDecimal(obj["from_value"]),
			FlatAmount:    mustDecimal(obj["flat_amount"]),
			PerUnitAmount: mustDecimal(obj["per_unit_amount"]),
		}
		if to, ok := validator.ParseDecimal(obj["to_value"]); ok {
			r.ToValue = &to
		}
		model.Ranges = append(model.Ranges, r)
	}
	return model, nil
}

func graduatedRangeRules(i int, ranges []any) []validator.Rule {
	obj := object(ranges[i])
	prefix := fmt.Sprintf("graduated_ranges[%d].", i)
	from, to := obj["from_value"], obj["to_value"]
	flat, perUnit := obj["flat_amount"], obj["per_unit_amount"]
	last := i == len(ranges)-1

	return []validator.Rule{
		validator.Present(prefix+"from_value", from, CodeInvalidGraduatedRanges),
		validator.DecimalValue(prefix+"from_value", from, CodeInvalidGraduatedRanges),
		validator.IntegerValue(prefix+"from_value", from, CodeInvalidGraduatedRanges),
		validator.DecimalValue(prefix+"to_value", to, CodeInvalidGraduatedRanges),
		validator.IntegerValue(prefix+"to_value", to, CodeInvalidGraduatedRanges),

		validator.Present(prefix+"flat_amount", flat, CodeInvalidAmount),
		validator.DecimalValue(prefix+"flat_amount", flat, CodeInvalidAmount),
		validator.NonNegativeDecimal(prefix+"flat_amount", flat, CodeInvalidAmount),
		validator.Present(prefix+"per_unit_amount", perUnit, CodeInvalidAmount),
		validator.DecimalValue(prefix+"per_unit_amount", perUnit, CodeInvalidAmount),
		validator.NonNegativeDecimal(prefix+"per_unit_amount", perUnit, CodeInvalidAmount),

		validator.Check(
			fmt.Sprintf("graduated_ranges[%d]", i),
			CodeInvalidGraduatedRanges,
			"ranges must be contiguous, start at 0 and only the last one may be open-ended",
			func() bool { return validBounds(i, ranges, last) },
		),
	}
}

// validBounds checks range i against its predecessor. Unparseable bounds are
// already reported by the field rules and are skipped here.
func validBounds(i int, ranges []any, last bool) bool {
	obj := object(ranges[i])
	from, ok := validator.ParseDecimal(obj["from_value"])
	if !ok {
		return true
	}

	expectedFrom := decimal.Zero
	if i > 0 {
		prevTo, ok := validator.ParseDecimal(object(ranges[i-1])["to_value"])
		if !ok {
			return true
		}
		expectedFrom = prevTo.Add(one)
	}
	if !from.Equal(expectedFrom) {
		return false
	}

	rawTo := obj["to_value"]
	if last {
		return rawTo == nil
	}
	to, ok := validator.ParseDecimal(rawTo)
	if !ok {
		return rawTo != nil
	}
	return to.GreaterThanOrEqual(from)
}
