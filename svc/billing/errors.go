package billing

import "errors"

var (
	ErrSubscriptionNotBillable = errors.New("subscription is not billable")
	ErrUsageUnavailable        = errors.New("failed to read usage")
	ErrInvalidCharge           = errors.New("invalid charge")
	ErrFeeSinkFailed           = errors.New("failed to store fees")
	ErrEnqueueFailed           = errors.New("failed to enqueue billing")
)
