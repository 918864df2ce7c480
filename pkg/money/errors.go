package money

import "errors"

var ErrCurrencyMismatch = errors.New("currencies do not match")
