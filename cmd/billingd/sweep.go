package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/svc/subscription"
)

// newActivationSweep schedules ActivatePending on spec. Overlapping runs are
// skipped.
func newActivationSweep(ctx context.Context, spec string, svc subscription.Service, log *slog.Logger) (*cron.Cron, error) {
	log = log.With(logger.Component("activation_sweep"))
	cl := cronLogger{log: log}

	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	_, err := c.AddFunc(spec, func() {
		start := time.Now()
		n, err := svc.ActivatePending(ctx, start)
		if err != nil {
			log.ErrorContext(ctx, "pending activation sweep failed",
				slog.Int("activated", n),
				logger.Error(err))
			return
		}
		if n > 0 {
			log.InfoContext(ctx, "pending subscriptions activated",
				slog.Int("activated", n),
				logger.Duration(time.Since(start)))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid ACTIVATION_SCHEDULE %q: %w", spec, err)
	}
	return c, nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, logger.Error(err))...)
}
