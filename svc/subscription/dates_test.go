package subscription_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/billingkit/svc/subscription"
)

func TestCalendarDates(t *testing.T) {
	t.Parallel()
	var d subscription.CalendarDates

	started := time.Date(2026, 1, 31, 22, 15, 0, 0, time.FixedZone("UTC+3", 3*3600))
	anchor := d.AnchorDate(subscription.IntervalMonthly, started)
	assert.Equal(t, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), anchor)

	tests := []struct {
		name     string
		interval subscription.Interval
		now      time.Time
		want     time.Time
	}{
		{"weekly", subscription.IntervalWeekly, time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC), time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)},
		{"monthly skips current period", subscription.IntervalMonthly, time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC), time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC)},
		{"monthly boundary is exclusive", subscription.IntervalMonthly, time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC), time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)},
		{"yearly", subscription.IntervalYearly, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2027, 1, 31, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, d.NextBoundary(tt.interval, anchor, tt.now))
		})
	}
}
