package billing

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the billing collectors. A nil *Metrics records nothing.
type Metrics struct {
	RunsTotal   *prometheus.CounterVec
	FeesTotal   *prometheus.CounterVec
	RunDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_runs_total",
				Help: "Billing runs by result",
			},
			[]string{"result"},
		),
		FeesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_fees_total",
				Help: "Fees handed to the fee sink by kind and timing",
			},
			[]string{"kind", "timing"},
		),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "billing_run_duration_seconds",
			Help:    "Duration of billing runs",
			Buckets: prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		reg.MustRegister(m.RunsTotal, m.FeesTotal, m.RunDuration)
	}
	return m
}

func (m *Metrics) run(err error) {
	if m == nil {
		return
	}
	result := "billed"
	switch {
	case errors.Is(err, ErrSubscriptionNotBillable):
		result = "skipped"
	case err != nil:
		result = "failed"
	}
	m.RunsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) feesStored(fees []Fee) {
	if m == nil {
		return
	}
	for _, f := range fees {
		m.FeesTotal.WithLabelValues(string(f.Kind), string(f.Timing)).Inc()
	}
}

func (m *Metrics) observe(start time.Time) {
	if m == nil {
		return
	}
	m.RunDuration.Observe(time.Since(start).Seconds())
}
