// Package pg connects to PostgreSQL through a pgx pool, applies embedded
// goose migrations and classifies common PostgreSQL errors.
//
// # Configuration
//
//	type Config struct {
//		ConnectionString  string        `env:"PG_CONN_URL,required"`
//		MaxOpenConns      int32         `env:"PG_MAX_OPEN_CONNS" envDefault:"10"`
//		MaxIdleConns      int32         `env:"PG_MAX_IDLE_CONNS" envDefault:"5"`
//		HealthCheckPeriod time.Duration `env:"PG_HEALTHCHECK_PERIOD" envDefault:"1m"`
//		MaxConnIdleTime   time.Duration `env:"PG_MAX_CONN_IDLE_TIME" envDefault:"10m"`
//		MaxConnLifetime   time.Duration `env:"PG_MAX_CONN_LIFETIME" envDefault:"30m"`
//		RetryAttempts     int           `env:"PG_RETRY_ATTEMPTS" envDefault:"3"`
//		RetryInterval     time.Duration `env:"PG_RETRY_INTERVAL" envDefault:"5s"`
//	}
//
// # Usage
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	// Each storage package ships its own embedded migration set and version table.
//	if err := pg.Migrate(ctx, pool, log, pgqueue.Migrations(), pgstore.Migrations()); err != nil {
//		return err
//	}
//
//	mux.Handle("GET /health/ready", health.Readiness(log, pg.Healthcheck(pool)))
//
// # Transactions
//
// WithTx attaches a pgx.Tx to a context and ExecutorFrom returns it when
// present, so a repository and the queue storage can take part in the same
// transaction: the appointment row and its scheduled job commit together.
//
//	tx, err := pool.Begin(ctx)
//	if err != nil {
//		return err
//	}
//	defer tx.Rollback(ctx)
//	ctx = pg.WithTx(ctx, tx)
//	// repository writes and queue enqueue both use pg.ExecutorFrom(ctx, pool)
//	return tx.Commit(ctx)
//
// # Errors
//
//	pg.IsNotFoundError(err)            // pgx.ErrNoRows
//	pg.IsDuplicateKeyError(err)        // unique_violation
//	pg.IsForeignKeyViolationError(err) // foreign_key_violation
//	pg.IsTxClosedError(err)            // pgx.ErrTxClosed
package pg
