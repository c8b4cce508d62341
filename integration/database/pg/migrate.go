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
)

// Migrations is one embedded migration set with its own version table.
type Migrations struct {
	FS    fs.FS
	Table string
}

// Migrate applies every migration set in order.
func Migrate(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger, sets ...Migrations) error {
	if len(sets) == 0 {
		return ErrMigrationsNotProvided
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	for _, set := range sets {
		if set.FS == nil || set.Table == "" {
			return ErrMigrationsNotProvided
		}

		store, err := database.NewStore(database.DialectPostgres, set.Table)
		if err != nil {
			return errors.Join(ErrFailedToApplyMigrations, err)
		}

		provider, err := goose.NewProvider("", db, set.FS, goose.WithStore(store))
		if err != nil {
			return errors.Join(ErrFailedToApplyMigrations, fmt.Errorf("%s: %w", set.Table, err))
		}

		results, err := provider.Up(ctx)
		if err != nil {
			return errors.Join(ErrFailedToApplyMigrations, fmt.Errorf("%s: %w", set.Table, err))
		}

		if log != nil {
			for _, r := range results {
				log.InfoContext(ctx, "migration applied",
					slog.String("table", set.Table),
					slog.String("source", r.Source.Path),
					slog.Duration("duration", r.Duration))
			}
		}
	}

	return nil
}
