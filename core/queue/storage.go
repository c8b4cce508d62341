package queue

// Storage is the complete backend for the Enqueuer and the Worker.
// MemoryStorage implements it for tests and development; a Postgres
// implementation lives in integration/queue/postgres.
type Storage interface {
	EnqueuerRepository
	WorkerRepository
}
