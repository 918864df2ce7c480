package pg

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// Migrate applies the goose migrations stored under dir in migrations and
// records them in cfg.MigrationsTable. Each schema owner keeps its own
// version table, so independent migration sets can share one database.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg Config, migrations fs.FS, dir string, log *slog.Logger) error {
	if migrations == nil {
		return errors.Join(ErrFailedToApplyMigrations, ErrMigrationsNotProvided)
	}
	if log == nil {
		log = slog.Default()
	}

	sub, err := fs.Sub(migrations, dir)
	if err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	store, err := database.NewStore(database.DialectPostgres, cfg.MigrationsTable)
	if err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer func() {
		if err := db.Close(); err != nil {
			log.WarnContext(ctx, "failed to close migration connection", logger.Error(err))
		}
	}()

	provider, err := goose.NewProvider("", db, sub, goose.WithStore(store))
	if err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	results, err := provider.Up(ctx)
	for _, r := range results {
		if r.Error != nil {
			continue
		}
		log.InfoContext(ctx, "migration applied",
			slog.String("table", cfg.MigrationsTable),
			slog.Int64("version", r.Source.Version),
			slog.String("source", r.Source.Path),
			logger.Duration(r.Duration))
	}
	if err != nil {
		return errors.Join(ErrFailedToApplyMigrations, fmt.Errorf("table %s: %w", cfg.MigrationsTable, err))
	}
	return nil
}
