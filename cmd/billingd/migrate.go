package main

import (
	"context"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/billingkit/pkg/pg"
	"github.com/dmitrymomot/billingkit/pkg/queue/pgstorage"
	billingpg "github.com/dmitrymomot/billingkit/svc/billing/pgstore"
	"github.com/dmitrymomot/billingkit/svc/subscription/pgstore"
)

// migrate applies every schema the process owns. Each schema tracks its
// version in its own goose table.
func migrate(ctx context.Context, pool *pgxpool.Pool, cfg pg.Config, log *slog.Logger) error {
	sets := []struct {
		table string
		fs    fs.FS
		dir   string
	}{
		{cfg.MigrationsTable, pgstore.Migrations, pgstore.MigrationsDir},
		{pgstorage.MigrationsTable, pgstorage.Migrations, pgstorage.MigrationsDir},
		{billingpg.MigrationsTable, billingpg.Migrations, billingpg.MigrationsDir},
	}

	for _, set := range sets {
		setCfg := cfg
		setCfg.MigrationsTable = set.table
		if err := pg.Migrate(ctx, pool, setCfg, set.fs, set.dir, log); err != nil {
			return err
		}
	}
	return nil
}
