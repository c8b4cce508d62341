// Package escalation delivers administrator alerts for failures the workflow
// could not recover from on its own.
//
// Alert is the end of every failure path and therefore never fails: email
// delivery errors and panics are logged and absorbed.
//
//	esc := escalation.New(sender, "ops@clinic.example", escalation.WithLogger(log))
//	esc.Alert(ctx, escalation.Alert{
//		Severity: escalation.SeverityCritical,
//		Subject:  "scheduled job dead-letter publish failed",
//		Reason:   err.Error(),
//		JobID:    job.ID.String(),
//		TraceID:  job.TraceID,
//	})
package escalation
