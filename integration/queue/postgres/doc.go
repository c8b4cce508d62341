// Package postgres is a durable queue.Storage on PostgreSQL.
//
// Workers claim tasks with FOR UPDATE SKIP LOCKED, so any number of
// replicas can poll the same table without handing one task to two
// workers. A task whose lock expired while processing (a crashed or stuck
// worker) becomes claimable again without a separate recovery loop.
// Exhausted tasks move to queue_tasks_dlq in the same statement that
// removes them from the live table.
//
//	if err := pg.Migrate(ctx, pool, log, postgres.Migrations()); err != nil {
//		return err
//	}
//	storage, err := postgres.New(pool, postgres.WithRetention(7*24*time.Hour))
//	svc, err := queue.NewService(storage, queue.WithWorkerOptions(...))
//
// CreateTask runs inside a transaction stored with pg.WithTx, so a job can
// be enqueued atomically with the row change that produced it.
package postgres
