package chargemodel

import "errors"

var (
	ErrInvalidProperties = errors.New("invalid charge model properties")
	ErrUnknownModel      = errors.New("unknown charge model")
)

// Field error codes reported inside validator.ValidationErrors.
const (
	CodeInvalidProperties      = "invalid_properties"
	CodeInvalidAmount          = "invalid_amount"
	CodeInvalidFreeUnits       = "invalid_free_units"
	CodeInvalidPackageSize     = "invalid_package_size"
	CodeMissingGraduatedRange  = "missing_graduated_range"
	CodeInvalidGraduatedRanges = "invalid_graduated_ranges"
)
