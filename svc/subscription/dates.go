package subscription

import "time"

// CalendarDates anchors chains on the UTC calendar day they start. Period
// boundaries are counted from the anchor with time.AddDate, never chained,
// so a boundary never drifts from the anchor day.
type CalendarDates struct{}

func (CalendarDates) AnchorDate(_ Interval, startedAt time.Time) time.Time {
	y, m, d := startedAt.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (CalendarDates) NextBoundary(interval Interval, anchor, now time.Time) time.Time {
	for n := 1; ; n++ {
		var b time.Time
		switch interval {
		case IntervalWeekly:
			b = anchor.AddDate(0, 0, 7*n)
		case IntervalYearly:
			b = anchor.AddDate(n, 0, 0)
		default:
			b = anchor.AddDate(0, n, 0)
		}
		if b.After(now) {
			return b
		}
	}
}
