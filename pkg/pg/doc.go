// Package pg bootstraps PostgreSQL access on top of pgx/v5 and goose/v3.
//
// Connect opens a *pgxpool.Pool from Config (populated from PG_* environment
// variables), retrying until the server answers a ping. Migrate applies goose
// migrations from an fs.FS, typically an embed.FS owned by the store package:
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	if err := pg.Migrate(ctx, pool, cfg, pgstore.Migrations, "migrations", log); err != nil {
//	    return err
//	}
//
// WithTx runs a function inside a transaction and AdvisoryXactLock serializes
// transactions on an arbitrary string key for the lifetime of the transaction:
//
//	err := pg.WithTx(ctx, pool, func(tx pgx.Tx) error {
//	    if err := pg.AdvisoryXactLock(ctx, tx, "customer:"+id.String()); err != nil {
//	        return err
//	    }
//	    // read-modify-write
//	    return nil
//	})
//
// The Is*Error helpers classify driver errors by SQLSTATE: duplicate keys,
// serialization failures and deadlocks (retryable), and lock timeouts.
package pg
