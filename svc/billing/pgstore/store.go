package pgstore

import (
	"context"
	"embed"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/billingkit/pkg/money"
	"github.com/dmitrymomot/billingkit/pkg/pg"
	"github.com/dmitrymomot/billingkit/svc/billing"
	"github.com/dmitrymomot/billingkit/svc/subscription"
)

//go:embed migrations/*.sql
var Migrations embed.FS

const (
	MigrationsDir   = "migrations"
	MigrationsTable = "billing_fees_schema_migrations"
)

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	pg.TxBeginner
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store keeps reported usage and computed fees.
type Store struct {
	db DB
}

var (
	_ billing.UsageSource = (*Store)(nil)
	_ billing.FeeSink     = (*Store)(nil)
)

func New(db DB) *Store {
	return &Store{db: db}
}

// RecordUsage appends a usage report for a subscription metric.
func (s *Store) RecordUsage(ctx context.Context, subscriptionID uuid.UUID, metric string, quantity decimal.Decimal) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO billing_usage (subscription_id, billable_metric, quantity) VALUES ($1, $2, $3)`,
		subscriptionID, metric, quantity)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// Quantity sums the usage reported for the charge's metric.
func (s *Store) Quantity(ctx context.Context, sub *subscription.Subscription, charge subscription.Charge) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM billing_usage WHERE subscription_id = $1 AND billable_metric = $2`,
		sub.ID, charge.BillableMetric).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum usage: %w", err)
	}
	return total, nil
}

// StoreFees inserts fees in one transaction. Fees already stored under the
// same ID are left untouched, so a retried billing run is harmless.
func (s *Store) StoreFees(ctx context.Context, fees []billing.Fee) error {
	return pg.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, f := range fees {
			var chargeID *uuid.UUID
			if f.ChargeID != uuid.Nil {
				chargeID = &f.ChargeID
			}
			batch.Queue(`INSERT INTO billing_fees
					(id, subscription_id, plan_id, charge_id, kind, timing, billable_metric, units, amount, currency, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
				ON CONFLICT (id) DO NOTHING`,
				f.ID, f.SubscriptionID, f.PlanID, chargeID, string(f.Kind), string(f.Timing), f.BillableMetric,
				f.Units, f.Amount.Amount, f.Amount.Currency, f.CreatedAt)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// Fees returns the stored fees of a subscription, oldest first.
func (s *Store) Fees(ctx context.Context, subscriptionID uuid.UUID) ([]billing.Fee, error) {
	rows, err := s.db.Query(ctx, `SELECT id, subscription_id, plan_id, charge_id, kind, timing,
			billable_metric, units, amount, currency, created_at
		FROM billing_fees WHERE subscription_id = $1 ORDER BY created_at, id`, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("query fees: %w", err)
	}
	defer rows.Close()

	var fees []billing.Fee
	for rows.Next() {
		var (
			f        billing.Fee
			chargeID *uuid.UUID
			amount   decimal.Decimal
			currency string
		)
		if err := rows.Scan(&f.ID, &f.SubscriptionID, &f.PlanID, &chargeID, &f.Kind, &f.Timing,
			&f.BillableMetric, &f.Units, &amount, &currency, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan fee: %w", err)
		}
		if chargeID != nil {
			f.ChargeID = *chargeID
		}
		f.Amount = money.New(amount, currency)
		f.CreatedAt = f.CreatedAt.UTC()
		fees = append(fees, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fees: %w", err)
	}
	return fees, nil
}
