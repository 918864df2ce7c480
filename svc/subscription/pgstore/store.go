package pgstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/billingkit/pkg/pg"
	"github.com/dmitrymomot/billingkit/svc/subscription"
)

// Migrations holds the goose migrations of the subscription schema.
// Apply them with pg.Migrate(ctx, pool, cfg, pgstore.Migrations, pgstore.MigrationsDir, log).
//
//go:embed migrations/*.sql
var Migrations embed.FS

const MigrationsDir = "migrations"

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	pg.TxBeginner
	querier
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements subscription.Store on PostgreSQL. Transactions run at
// read committed; customer-level isolation comes from Tx.Lock, which takes a
// transaction-scoped advisory lock.
type Store struct {
	queries
	db DB
}

var _ subscription.Store = (*Store)(nil)

func New(db DB) *Store {
	return &Store{queries: queries{db: db}, db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx subscription.Tx) error) error {
	var fnErr error
	err := pg.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		fnErr = fn(ctx, &txStore{queries: queries{db: tx}, tx: tx})
		return fnErr
	})
	if fnErr != nil {
		return classify(fnErr)
	}
	if err != nil {
		return classify(err)
	}
	return nil
}

type txStore struct {
	queries
	tx pgx.Tx
}

var _ subscription.Tx = (*txStore)(nil)

func (t *txStore) Lock(ctx context.Context, key string) error {
	return classify(pg.AdvisoryXactLock(ctx, t.tx, key))
}

// classify maps driver errors onto the subscription error categories.
// Errors that already carry a category pass through untouched.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case subscription.IsValidation(err), subscription.IsNotFound(err),
		subscription.IsConflict(err), subscription.IsConcurrencyConflict(err):
		return err
	case pg.IsSerializationError(err), pg.IsLockNotAvailableError(err):
		return errors.Join(subscription.ErrConcurrencyConflict, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return errors.Join(subscription.ErrStoreFailure, err)
	}
}

type queries struct {
	db querier
}

const subscriptionColumns = `id, organization_id, customer_id, plan_id, unique_id, name, status,
	previous_subscription_id, subscription_date, started_at, pending_start_date,
	canceled_at, terminated_at, created_at, updated_at`

func scanSubscription(row pgx.Row) (*subscription.Subscription, error) {
	var s subscription.Subscription
	err := row.Scan(
		&s.ID, &s.OrganizationID, &s.CustomerID, &s.PlanID, &s.UniqueID, &s.Name, &s.Status,
		&s.PreviousSubscriptionID, &s.SubscriptionDate, &s.StartedAt, &s.PendingStartDate,
		&s.CanceledAt, &s.TerminatedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.SubscriptionDate = s.SubscriptionDate.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	for _, t := range []**time.Time{&s.StartedAt, &s.PendingStartDate, &s.CanceledAt, &s.TerminatedAt} {
		if *t != nil {
			u := (*t).UTC()
			*t = &u
		}
	}
	return &s, nil
}

func (q queries) one(ctx context.Context, notFound error, sql string, args ...any) (*subscription.Subscription, error) {
	s, err := scanSubscription(q.db.QueryRow(ctx, sql, args...))
	if pg.IsNotFoundError(err) {
		return nil, notFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return s, nil
}

func (q queries) GetSubscription(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	return q.one(ctx, fmt.Errorf("%w: %s", subscription.ErrSubscriptionNotFound, id),
		`SELECT `+subscriptionColumns+` FROM billing_subscriptions WHERE id = $1`, id)
}

func (q queries) NextSubscription(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	return q.one(ctx, fmt.Errorf("%w: no successor of %s", subscription.ErrSubscriptionNotFound, id),
		`SELECT `+subscriptionColumns+` FROM billing_subscriptions
		WHERE previous_subscription_id = $1 AND status <> 'canceled'
		ORDER BY created_at DESC
		LIMIT 1`, id)
}

func (q queries) DuePending(ctx context.Context, before time.Time) ([]*subscription.Subscription, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM billing_subscriptions
		WHERE status = 'pending' AND pending_start_date <= $1
		ORDER BY pending_start_date`, before)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []*subscription.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, s)
	}
	return out, classify(rows.Err())
}

func (q queries) FindActive(ctx context.Context, customerID uuid.UUID) (*subscription.Subscription, error) {
	return q.one(ctx, subscription.ErrSubscriptionNotFound,
		`SELECT `+subscriptionColumns+` FROM billing_subscriptions
		WHERE customer_id = $1 AND status = 'active'`, customerID)
}

func (q queries) FindByUniqueID(ctx context.Context, customerID uuid.UUID, uniqueID string) (*subscription.Subscription, error) {
	return q.one(ctx, subscription.ErrSubscriptionNotFound,
		`SELECT `+subscriptionColumns+` FROM billing_subscriptions
		WHERE customer_id = $1 AND unique_id = $2`, customerID, uniqueID)
}

func (q queries) CreateSubscription(ctx context.Context, s *subscription.Subscription) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO billing_subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		s.ID, s.OrganizationID, s.CustomerID, s.PlanID, s.UniqueID, s.Name, string(s.Status),
		s.PreviousSubscriptionID, s.SubscriptionDate, s.StartedAt, s.PendingStartDate,
		s.CanceledAt, s.TerminatedAt, s.CreatedAt, s.UpdatedAt,
	)
	if pg.IsDuplicateKeyError(err) {
		return errors.Join(subscription.ErrDuplicateSubscription, err)
	}
	return classify(err)
}

func (q queries) UpdateSubscription(ctx context.Context, s *subscription.Subscription) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE billing_subscriptions SET
			status = $2, name = $3, started_at = $4, pending_start_date = $5,
			canceled_at = $6, terminated_at = $7, updated_at = $8
		WHERE id = $1`,
		s.ID, string(s.Status), s.Name, s.StartedAt, s.PendingStartDate,
		s.CanceledAt, s.TerminatedAt, s.UpdatedAt,
	)
	if pg.IsDuplicateKeyError(err) {
		return errors.Join(subscription.ErrConcurrencyConflict, err)
	}
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", subscription.ErrSubscriptionNotFound, s.ID)
	}
	return nil
}

func (q queries) GetCustomer(ctx context.Context, id uuid.UUID) (*subscription.Customer, error) {
	return q.customer(ctx, fmt.Errorf("%w: %s", subscription.ErrCustomerNotFound, id),
		`SELECT id, organization_id, external_id, created_at FROM billing_customers WHERE id = $1`, id)
}

func (q queries) FindCustomer(ctx context.Context, organizationID uuid.UUID, externalID string) (*subscription.Customer, error) {
	return q.customer(ctx, subscription.ErrCustomerNotFound,
		`SELECT id, organization_id, external_id, created_at FROM billing_customers
		WHERE organization_id = $1 AND external_id = $2`, organizationID, externalID)
}

func (q queries) customer(ctx context.Context, notFound error, sql string, args ...any) (*subscription.Customer, error) {
	var c subscription.Customer
	err := q.db.QueryRow(ctx, sql, args...).Scan(&c.ID, &c.OrganizationID, &c.ExternalID, &c.CreatedAt)
	if pg.IsNotFoundError(err) {
		return nil, notFound
	}
	if err != nil {
		return nil, classify(err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (q queries) CreateCustomer(ctx context.Context, c *subscription.Customer) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO billing_customers (id, organization_id, external_id, created_at)
		VALUES ($1, $2, $3, $4)`,
		c.ID, c.OrganizationID, c.ExternalID, c.CreatedAt,
	)
	if pg.IsDuplicateKeyError(err) {
		return errors.Join(subscription.ErrConcurrencyConflict, err)
	}
	return classify(err)
}
