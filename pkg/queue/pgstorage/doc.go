// Package pgstorage stores queue tasks in PostgreSQL so that billing tasks
// survive restarts and can be consumed by several worker processes.
//
//	if err := pg.Migrate(ctx, pool, queueCfg, pgstorage.Migrations, pgstorage.MigrationsDir, log); err != nil {
//		return err
//	}
//	storage := pgstorage.New(pool)
//	enqueuer, _ := queue.NewEnqueuer(storage)
//	worker, _ := queue.NewWorker(storage)
//
// queueCfg is the pg.Config with MigrationsTable set to MigrationsTable.
package pgstorage
