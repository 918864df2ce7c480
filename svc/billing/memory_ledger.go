package billing

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/billingkit/svc/subscription"
)

// MemoryLedger is an in-process UsageSource and FeeSink for tests and
// single-instance runs. Fees with an already stored ID are ignored.
type MemoryLedger struct {
	mu    sync.RWMutex
	usage map[uuid.UUID]map[string]decimal.Decimal
	fees  map[uuid.UUID][]Fee
	seen  map[uuid.UUID]struct{}
}

var (
	_ UsageSource = (*MemoryLedger)(nil)
	_ FeeSink     = (*MemoryLedger)(nil)
)

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		usage: make(map[uuid.UUID]map[string]decimal.Decimal),
		fees:  make(map[uuid.UUID][]Fee),
		seen:  make(map[uuid.UUID]struct{}),
	}
}

// RecordUsage adds quantity to the running total of a subscription metric.
func (l *MemoryLedger) RecordUsage(_ context.Context, subscriptionID uuid.UUID, metric string, quantity decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.usage[subscriptionID] == nil {
		l.usage[subscriptionID] = make(map[string]decimal.Decimal)
	}
	l.usage[subscriptionID][metric] = l.usage[subscriptionID][metric].Add(quantity)
	return nil
}

func (l *MemoryLedger) Quantity(_ context.Context, sub *subscription.Subscription, charge subscription.Charge) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.usage[sub.ID][charge.BillableMetric], nil
}

func (l *MemoryLedger) StoreFees(_ context.Context, fees []Fee) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, f := range fees {
		if _, ok := l.seen[f.ID]; ok {
			continue
		}
		l.seen[f.ID] = struct{}{}
		l.fees[f.SubscriptionID] = append(l.fees[f.SubscriptionID], f)
	}
	return nil
}

// Fees returns the stored fees of a subscription in insertion order.
func (l *MemoryLedger) Fees(subscriptionID uuid.UUID) []Fee {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.fees[subscriptionID])
}
