// Package pgstore is the PostgreSQL implementation of subscription.Store.
//
// The schema ships as embedded goose migrations:
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	if err := pg.Migrate(ctx, pool, cfg, pgstore.Migrations, pgstore.MigrationsDir, log); err != nil {
//		return err
//	}
//	svc := subscription.NewService(pgstore.New(pool), catalog)
//
// Partial unique indexes keep at most one active subscription per customer
// and one pending successor per subscription, so a racing writer fails with
// subscription.ErrConcurrencyConflict instead of corrupting the chain.
// Integration tests run when PG_TEST_CONN_URL points at a disposable database.
package pgstore
