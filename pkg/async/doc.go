// Package async runs error-returning functions concurrently and collects
// their results.
//
// Exec starts fn in its own goroutine and returns an ExecFuture. A panic in
// fn is recovered and reported as ErrPanic so one failing side effect cannot
// take the process down.
//
//	futures := []*async.ExecFuture{
//		async.Exec(ctx, patientID, notify),
//		async.Exec(ctx, doctorID, notify),
//	}
//	err := async.JoinAll(futures...)
//
// JoinAll waits for every future and joins all errors with errors.Join:
// every branch is attempted and every failure is reported. Pass a detached
// context (context.WithoutCancel) when the branches must run even after the
// caller is cancelled.
package async
