package subscription

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Decision names the outcome of a lifecycle request.
type Decision string

const (
	DecisionCreated    Decision = "created"
	DecisionIdempotent Decision = "idempotent"
	DecisionUnchanged  Decision = "unchanged"
	DecisionUpgrade    Decision = "upgrade"
	DecisionDowngrade  Decision = "downgrade"
	DecisionActivated  Decision = "activated"
	DecisionTerminated Decision = "terminated"
)

// Metrics holds the lifecycle engine collectors. A nil *Metrics records nothing.
type Metrics struct {
	DecisionsTotal       *prometheus.CounterVec
	ErrorsTotal          *prometheus.CounterVec
	BillingTriggerFailed prometheus.Counter
	CanceledSuccessors   prometheus.Counter
	DecisionDuration     *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_subscription_decisions_total",
				Help: "Subscription lifecycle decisions by outcome",
			},
			[]string{"decision"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_subscription_errors_total",
				Help: "Failed subscription lifecycle requests by error category",
			},
			[]string{"category"},
		),
		BillingTriggerFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_subscription_billing_trigger_failures_total",
			Help: "Billing triggers that could not be enqueued after commit",
		}),
		CanceledSuccessors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_subscription_canceled_successors_total",
			Help: "Pending successors canceled by a newer decision",
		}),
		DecisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billing_subscription_operation_duration_seconds",
				Help:    "Duration of lifecycle operations including lock wait",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.DecisionsTotal,
			m.ErrorsTotal,
			m.BillingTriggerFailed,
			m.CanceledSuccessors,
			m.DecisionDuration,
		)
	}
	return m
}

func (m *Metrics) decision(d Decision) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(string(d)).Inc()
}

func (m *Metrics) failure(err error) {
	if m == nil || err == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorCategory(err)).Inc()
}

func (m *Metrics) triggerFailed() {
	if m == nil {
		return
	}
	m.BillingTriggerFailed.Inc()
}

func (m *Metrics) canceledSuccessor() {
	if m == nil {
		return
	}
	m.CanceledSuccessors.Inc()
}

func (m *Metrics) observe(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.DecisionDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func errorCategory(err error) string {
	switch {
	case IsValidation(err):
		return "validation"
	case IsNotFound(err):
		return "not_found"
	case IsConflict(err):
		return "conflict"
	case IsConcurrencyConflict(err):
		return "concurrency_conflict"
	default:
		return "internal"
	}
}
