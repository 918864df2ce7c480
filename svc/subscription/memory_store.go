package subscription

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. Transactions stage their writes and
// apply them at commit, so a failed transaction leaves no trace. Tx.Lock
// serializes transactions sharing a key; the rest run concurrently and are
// checked for conflicting writes when they commit.
type MemoryStore struct {
	locks *KeyedLocker

	mu        sync.RWMutex
	subs      map[uuid.UUID]*Subscription
	customers map[uuid.UUID]*Customer
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:     NewKeyedLocker(),
		subs:      make(map[uuid.UUID]*Subscription),
		customers: make(map[uuid.UUID]*Customer),
	}
}

// view abstracts committed state and a transaction's staged state.
type view interface {
	sub(id uuid.UUID) (*Subscription, bool)
	customer(id uuid.UUID) (*Customer, bool)
	eachSub(fn func(*Subscription))
	eachCustomer(fn func(*Customer))
}

func (m *MemoryStore) sub(id uuid.UUID) (*Subscription, bool) {
	s, ok := m.subs[id]
	return s, ok
}

func (m *MemoryStore) customer(id uuid.UUID) (*Customer, bool) {
	c, ok := m.customers[id]
	return c, ok
}

func (m *MemoryStore) eachSub(fn func(*Subscription)) {
	for _, s := range m.subs {
		fn(s)
	}
}

func (m *MemoryStore) eachCustomer(fn func(*Customer)) {
	for _, c := range m.customers {
		fn(c)
	}
}

func (m *MemoryStore) GetSubscription(_ context.Context, id uuid.UUID) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return getSubscription(m, id)
}

func (m *MemoryStore) GetCustomer(_ context.Context, id uuid.UUID) (*Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return getCustomer(m, id)
}

func (m *MemoryStore) NextSubscription(_ context.Context, id uuid.UUID) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return nextSubscription(m, id)
}

func (m *MemoryStore) DuePending(_ context.Context, before time.Time) ([]*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return duePending(m, before), nil
}

// InTx runs fn against a private staging area and commits it atomically.
// It returns ErrConcurrencyConflict when another transaction committed a
// conflicting write first.
func (m *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memTx{
		store:     m,
		subs:      make(map[uuid.UUID]*Subscription),
		customers: make(map[uuid.UUID]*Customer),
		seen:      make(map[uuid.UUID]*Subscription),
	}
	defer tx.unlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.conflicts(tx); err != nil {
		return err
	}
	for id, s := range tx.subs {
		m.subs[id] = s
	}
	for id, c := range tx.customers {
		m.customers[id] = c
	}
	return nil
}

// conflicts reports staged writes based on committed state that has changed
// since tx read it. Callers hold mu.
func (m *MemoryStore) conflicts(tx *memTx) error {
	for id, staged := range tx.subs {
		if m.subs[id] != tx.seen[id] {
			return fmt.Errorf("%w: subscription %s changed concurrently", ErrConcurrencyConflict, id)
		}
		created := tx.seen[id] == nil
		for _, other := range m.subs {
			if other.ID == id || other.CustomerID != staged.CustomerID {
				continue
			}
			if created && other.UniqueID == staged.UniqueID {
				return ErrDuplicateSubscription
			}
			if !staged.IsActive() || !other.IsActive() {
				continue
			}
			if s, ok := tx.subs[other.ID]; ok && !s.IsActive() {
				continue
			}
			return fmt.Errorf("%w: customer %s already has an active subscription", ErrConcurrencyConflict, staged.CustomerID)
		}
	}

	for id, staged := range tx.customers {
		if _, ok := m.customers[id]; ok {
			return fmt.Errorf("%w: customer %s already exists", ErrConcurrencyConflict, id)
		}
		for _, c := range m.customers {
			if c.OrganizationID == staged.OrganizationID && c.ExternalID == staged.ExternalID {
				return fmt.Errorf("%w: customer %q already exists", ErrConcurrencyConflict, staged.ExternalID)
			}
		}
	}
	return nil
}

// memTx reads through its staged writes to the committed state and records
// the committed version of every subscription it observes.
type memTx struct {
	store     *MemoryStore
	subs      map[uuid.UUID]*Subscription
	customers map[uuid.UUID]*Customer
	seen      map[uuid.UUID]*Subscription
	keys      []string
	releases  []func()
}

func (tx *memTx) observe(s *Subscription) {
	if _, ok := tx.seen[s.ID]; !ok {
		tx.seen[s.ID] = s
	}
}

func (tx *memTx) unlock() {
	for i := len(tx.releases) - 1; i >= 0; i-- {
		tx.releases[i]()
	}
}

func (tx *memTx) sub(id uuid.UUID) (*Subscription, bool) {
	if s, ok := tx.subs[id]; ok {
		return s, true
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	s, ok := tx.store.sub(id)
	if ok {
		tx.observe(s)
	}
	return s, ok
}

func (tx *memTx) customer(id uuid.UUID) (*Customer, bool) {
	if c, ok := tx.customers[id]; ok {
		return c, true
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	return tx.store.customer(id)
}

func (tx *memTx) eachSub(fn func(*Subscription)) {
	for _, s := range tx.subs {
		fn(s)
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	tx.store.eachSub(func(s *Subscription) {
		if _, staged := tx.subs[s.ID]; !staged {
			tx.observe(s)
			fn(s)
		}
	})
}

func (tx *memTx) eachCustomer(fn func(*Customer)) {
	for _, c := range tx.customers {
		fn(c)
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	tx.store.eachCustomer(func(c *Customer) {
		if _, staged := tx.customers[c.ID]; !staged {
			fn(c)
		}
	})
}

// Lock holds key until the transaction ends. Taking the same key twice in
// one transaction is a no-op.
func (tx *memTx) Lock(ctx context.Context, key string) error {
	if slices.Contains(tx.keys, key) {
		return nil
	}
	release, err := tx.store.locks.Acquire(ctx, key)
	if err != nil {
		return err
	}
	tx.keys = append(tx.keys, key)
	tx.releases = append(tx.releases, release)
	return nil
}

func (tx *memTx) GetSubscription(_ context.Context, id uuid.UUID) (*Subscription, error) {
	return getSubscription(tx, id)
}

func (tx *memTx) GetCustomer(_ context.Context, id uuid.UUID) (*Customer, error) {
	return getCustomer(tx, id)
}

func (tx *memTx) NextSubscription(_ context.Context, id uuid.UUID) (*Subscription, error) {
	return nextSubscription(tx, id)
}

func (tx *memTx) DuePending(_ context.Context, before time.Time) ([]*Subscription, error) {
	return duePending(tx, before), nil
}

func (tx *memTx) FindCustomer(_ context.Context, organizationID uuid.UUID, externalID string) (*Customer, error) {
	var found *Customer
	tx.eachCustomer(func(c *Customer) {
		if c.OrganizationID == organizationID && c.ExternalID == externalID {
			found = c
		}
	})
	if found == nil {
		return nil, ErrCustomerNotFound
	}
	c := *found
	return &c, nil
}

func (tx *memTx) CreateCustomer(ctx context.Context, c *Customer) error {
	if _, err := tx.FindCustomer(ctx, c.OrganizationID, c.ExternalID); err == nil {
		return fmt.Errorf("%w: customer %q already exists", ErrConcurrencyConflict, c.ExternalID)
	}
	cp := *c
	tx.customers[c.ID] = &cp
	return nil
}

func (tx *memTx) FindActive(_ context.Context, customerID uuid.UUID) (*Subscription, error) {
	var found *Subscription
	tx.eachSub(func(s *Subscription) {
		if s.CustomerID == customerID && s.IsActive() {
			found = s
		}
	})
	if found == nil {
		return nil, ErrSubscriptionNotFound
	}
	return found.clone(), nil
}

func (tx *memTx) FindByUniqueID(_ context.Context, customerID uuid.UUID, uniqueID string) (*Subscription, error) {
	var found *Subscription
	tx.eachSub(func(s *Subscription) {
		if s.CustomerID == customerID && s.UniqueID == uniqueID {
			found = s
		}
	})
	if found == nil {
		return nil, ErrSubscriptionNotFound
	}
	return found.clone(), nil
}

func (tx *memTx) CreateSubscription(ctx context.Context, s *Subscription) error {
	if _, ok := tx.sub(s.ID); ok {
		return fmt.Errorf("%w: subscription %s already exists", ErrConflict, s.ID)
	}
	if _, err := tx.FindByUniqueID(ctx, s.CustomerID, s.UniqueID); err == nil {
		return ErrDuplicateSubscription
	}
	tx.subs[s.ID] = s.clone()
	return nil
}

func (tx *memTx) UpdateSubscription(_ context.Context, s *Subscription) error {
	if _, ok := tx.sub(s.ID); !ok {
		return fmt.Errorf("%w: %s", ErrSubscriptionNotFound, s.ID)
	}
	tx.subs[s.ID] = s.clone()
	return nil
}

func getSubscription(v view, id uuid.UUID) (*Subscription, error) {
	s, ok := v.sub(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSubscriptionNotFound, id)
	}
	return s.clone(), nil
}

func getCustomer(v view, id uuid.UUID) (*Customer, error) {
	c, ok := v.customer(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCustomerNotFound, id)
	}
	cp := *c
	return &cp, nil
}

func nextSubscription(v view, id uuid.UUID) (*Subscription, error) {
	var found *Subscription
	v.eachSub(func(s *Subscription) {
		if s.PreviousSubscriptionID == nil || *s.PreviousSubscriptionID != id || s.IsCanceled() {
			return
		}
		if found == nil || s.CreatedAt.After(found.CreatedAt) {
			found = s
		}
	})
	if found == nil {
		return nil, fmt.Errorf("%w: no successor of %s", ErrSubscriptionNotFound, id)
	}
	return found.clone(), nil
}

func duePending(v view, before time.Time) []*Subscription {
	var out []*Subscription
	v.eachSub(func(s *Subscription) {
		if s.IsPending() && s.PendingStartDate != nil && !s.PendingStartDate.After(before) {
			out = append(out, s.clone())
		}
	})
	slices.SortFunc(out, func(a, b *Subscription) int {
		return a.PendingStartDate.Compare(*b.PendingStartDate)
	})
	return out
}
