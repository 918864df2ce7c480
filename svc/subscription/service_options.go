package subscription

import (
	"log/slog"
	"time"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*service)

// WithLocker replaces the in-process customer lock, e.g. with a redis-backed
// one when several instances share a store.
func WithLocker(l Locker) ServiceOption {
	return func(s *service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithBillingTrigger sets where billing requests go after a committed change.
// Without it no billing is triggered.
func WithBillingTrigger(t BillingTrigger) ServiceOption {
	return func(s *service) {
		if t != nil {
			s.billing = t
		}
	}
}

// WithDateCalculator overrides anchor and activation date computation.
func WithDateCalculator(d DateCalculator) ServiceOption {
	return func(s *service) {
		if d != nil {
			s.dates = d
		}
	}
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *Metrics) ServiceOption {
	return func(s *service) {
		s.metrics = m
	}
}

// WithClock sets the time source, mostly for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *service) {
		if now != nil {
			s.clock = now
		}
	}
}
