// Package queue is the delayed job scheduler: durable tasks that run at or
// after a target time, retry with exponential backoff and are dead-lettered
// once their attempt budget is spent.
//
// # Scheduling
//
//	id, err := enqueuer.Enqueue(ctx, payload,
//		queue.WithQueue("appointment-scheduled"),
//		queue.WithTaskName("appointment.status"),
//		queue.WithScheduledAt(appt.Date),
//		queue.WithMaxAttempts(5),
//		queue.WithBackoff(queue.Exponential(time.Second)),
//		queue.WithDeadLetterTopic("appointment-scheduled-dlq"),
//		queue.WithTraceID(traceID),
//		queue.WithOwner(userID),
//	)
//
// A target time in the past runs immediately.
//
// # Retries
//
// After failed attempt n the task becomes due again at now + base*2^(n-1).
// When the attempt count reaches MaxAttempts the task is moved to the storage
// dead-letter table and a DeadJob is published to its dead-letter topic. If
// that publish fails the worker raises a critical alert carrying the job id,
// owner id, trace id and reason. Tasks whose handler is missing are
// dead-lettered immediately.
//
// # Storage
//
// MemoryStorage keeps everything in process and recovers tasks whose worker
// lock expired. integration/queue/postgres persists tasks in Postgres so
// accepted jobs survive a restart.
//
// Consumers of dead-letter topics decode records with DecodeDeadJob or wrap a
// handler with NewDeadJobHandler.
package queue
