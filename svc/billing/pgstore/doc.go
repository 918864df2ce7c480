// Package pgstore keeps billing usage reports and computed fees in
// PostgreSQL. Store implements both billing.UsageSource and billing.FeeSink.
// Migrations track their version in MigrationsTable.
package pgstore
