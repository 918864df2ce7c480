package subscription

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by the Service wraps exactly one of
// them, so callers can branch with errors.Is or the Is* helpers below.
var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

var (
	ErrCustomerIdentifierMissing = fmt.Errorf("%w: customer identifier is required", ErrValidation)
	ErrPlanCodeMissing           = fmt.Errorf("%w: plan code is required", ErrValidation)
	ErrInvalidPlan               = fmt.Errorf("%w: invalid plan configuration", ErrValidation)

	ErrPlanNotFound         = fmt.Errorf("%w: plan", ErrNotFound)
	ErrCustomerNotFound     = fmt.Errorf("%w: customer", ErrNotFound)
	ErrSubscriptionNotFound = fmt.Errorf("%w: subscription", ErrNotFound)

	ErrCurrencyMismatch      = fmt.Errorf("%w: plan currency mismatch", ErrConflict)
	ErrSubscriptionNotActive = fmt.Errorf("%w: subscription is not active", ErrConflict)
	ErrInvalidTransition     = fmt.Errorf("%w: invalid subscription status transition", ErrConflict)

	ErrDuplicateSubscription = fmt.Errorf("%w: subscription with this unique id already exists", ErrConcurrencyConflict)
	ErrLockNotAcquired       = fmt.Errorf("%w: customer lock not acquired", ErrConcurrencyConflict)

	ErrFailedToLoadPlans = errors.New("failed to load subscription plans")
	ErrStoreFailure      = errors.New("subscription store failure")
)

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsConcurrencyConflict reports whether the request lost a race for the
// customer and may be retried as a whole.
func IsConcurrencyConflict(err error) bool { return errors.Is(err, ErrConcurrencyConflict) }
