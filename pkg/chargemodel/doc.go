// Package chargemodel prices metered usage under a fixed set of schemes.
//
// A charge stores its scheme as a Kind tag plus opaque JSON properties.
// Parse validates those properties and returns a typed Model; Apply then maps
// a usage quantity to an exact decimal amount:
//
//	m, err := chargemodel.Parse(chargemodel.KindGraduated, charge.Properties)
//	if err != nil {
//		verrs := validator.ExtractValidationErrors(err) // every violated field
//	}
//	amount := chargemodel.Apply(m, quantity)
//
// Supported schemes:
//   - Standard: quantity x amount.
//   - Graduated: tiers with a flat fee charged on entry and a marginal per-unit rate.
//   - Package: bundles of package_size units after free_units, a started bundle is billed in full.
//
// Apply is pure and safe for concurrent use. It does not re-validate its input.
package chargemodel
