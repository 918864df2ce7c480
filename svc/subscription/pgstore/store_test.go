package pgstore_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/money"
	"github.com/dmitrymomot/billingkit/pkg/pg"
	"github.com/dmitrymomot/billingkit/svc/subscription"
	"github.com/dmitrymomot/billingkit/svc/subscription/pgstore"
)

// connect returns a migrated pool or skips when PG_TEST_CONN_URL is unset.
func connect(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("PG_TEST_CONN_URL")
	if url == "" {
		t.Skip("PG_TEST_CONN_URL is not set")
	}

	ctx := context.Background()
	cfg := pg.Config{
		ConnectionString: url,
		MaxOpenConns:     10,
		RetryAttempts:    1,
		RetryInterval:    time.Second,
		LockTimeout:      5 * time.Second,
		MigrationsTable:  "billing_schema_migrations",
	}
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pg.Migrate(ctx, pool, cfg, pgstore.Migrations, pgstore.MigrationsDir, logger.Discard()))
	return pool
}

func newService(t *testing.T, store subscription.Store, org uuid.UUID) subscription.Service {
	t.Helper()

	plan := func(code, amount string) subscription.Plan {
		return subscription.Plan{
			OrganizationID: org,
			Code:           code,
			Interval:       subscription.IntervalMonthly,
			Amount:         money.New(decimal.RequireFromString(amount), "EUR"),
		}
	}
	catalog, err := subscription.NewCatalog(context.Background(), subscription.NewInMemSource(
		plan("basic", "1"), plan("pro", "2"), plan("lite", "0.5"),
	))
	require.NoError(t, err)

	return subscription.NewService(store, catalog, subscription.WithLogger(logger.Discard()))
}

func TestStore_Lifecycle(t *testing.T) {
	pool := connect(t)
	ctx := context.Background()
	store := pgstore.New(pool)
	org := uuid.New()
	svc := newService(t, store, org)

	req := func(plan, token string) subscription.CreateRequest {
		return subscription.CreateRequest{
			OrganizationID:     org,
			CustomerExternalID: "cus_1",
			PlanCode:           plan,
			UniqueID:           token,
		}
	}

	s1, err := svc.CreateFromExternalRequest(ctx, req("basic", "req-1"))
	require.NoError(t, err)
	again, err := svc.CreateFromExternalRequest(ctx, req("basic", "req-1"))
	require.NoError(t, err)
	assert.Equal(t, s1.ID, again.ID)

	down, err := svc.CreateFromExternalRequest(ctx, req("lite", "req-2"))
	require.NoError(t, err)
	assert.Equal(t, s1.ID, down.ID)
	pending, err := svc.NextSubscription(ctx, s1.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPending, pending.Status)

	s2, err := svc.CreateFromExternalRequest(ctx, req("pro", "req-3"))
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, s2.Status)
	assert.Equal(t, s1.SubscriptionDate, s2.SubscriptionDate)

	canceled, err := store.GetSubscription(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, canceled.Status)

	old, err := store.GetSubscription(ctx, s1.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusTerminated, old.Status)

	prev, err := svc.PreviousSubscription(ctx, s2.ID)
	require.NoError(t, err)
	assert.Equal(t, s1.ID, prev.ID)

	_, err = store.GetSubscription(ctx, uuid.New())
	assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
}

func TestStore_RollbackOnError(t *testing.T) {
	pool := connect(t)
	ctx := context.Background()
	store := pgstore.New(pool)
	org := uuid.New()

	err := store.InTx(ctx, func(ctx context.Context, tx subscription.Tx) error {
		require.NoError(t, tx.Lock(ctx, "customer:rollback"))
		require.NoError(t, tx.CreateCustomer(ctx, &subscription.Customer{
			ID:             uuid.New(),
			OrganizationID: org,
			ExternalID:     "cus_rollback",
			CreatedAt:      time.Now().UTC(),
		}))
		return subscription.ErrCurrencyMismatch
	})
	assert.ErrorIs(t, err, subscription.ErrCurrencyMismatch)

	err = store.InTx(ctx, func(ctx context.Context, tx subscription.Tx) error {
		_, err := tx.FindCustomer(ctx, org, "cus_rollback")
		return err
	})
	assert.ErrorIs(t, err, subscription.ErrCustomerNotFound)
}

func TestStore_DuplicateUniqueID(t *testing.T) {
	pool := connect(t)
	ctx := context.Background()
	store := pgstore.New(pool)
	org := uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)

	customer := &subscription.Customer{ID: uuid.New(), OrganizationID: org, ExternalID: "cus_dup", CreatedAt: now}
	sub := func() *subscription.Subscription {
		return &subscription.Subscription{
			ID:               uuid.New(),
			OrganizationID:   org,
			CustomerID:       customer.ID,
			PlanID:           uuid.New(),
			UniqueID:         "token",
			Status:           subscription.StatusCanceled,
			SubscriptionDate: now,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
	}

	err := store.InTx(ctx, func(ctx context.Context, tx subscription.Tx) error {
		if err := tx.CreateCustomer(ctx, customer); err != nil {
			return err
		}
		if err := tx.CreateSubscription(ctx, sub()); err != nil {
			return err
		}
		return tx.CreateSubscription(ctx, sub())
	})
	assert.ErrorIs(t, err, subscription.ErrDuplicateSubscription)
	assert.True(t, subscription.IsConcurrencyConflict(err))
}

func TestStore_ConcurrentRequests(t *testing.T) {
	pool := connect(t)
	store := pgstore.New(pool)
	org := uuid.New()

	// separate services share nothing in process, like separate instances
	const n = 8
	ids := make([]uuid.UUID, n)
	var wg sync.WaitGroup
	for i := range n {
		svc := newService(t, store, org)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub, err := svc.CreateFromExternalRequest(context.Background(), subscription.CreateRequest{
				OrganizationID:     org,
				CustomerExternalID: "cus_race",
				PlanCode:           "basic",
				UniqueID:           fmt.Sprintf("req-%d", i),
			})
			if assert.NoError(t, err) {
				ids[i] = sub.ID
			}
		}()
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}
