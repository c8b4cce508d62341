// Package appointment holds the appointment state machine and the command
// and job handlers that apply it.
//
// Transition is a pure function: given the current appointment, the
// requested status and the actor's role it returns a Decision (the patch to
// persist and the side effects to dispatch) or a *TransitionError. Role
// checks run before status checks. Every TransitionError is permanent, so
// the command router never retries it.
//
//	PENDING -> CONFIRMED -> RUNNING -> COMPLETED
//	    \_________\___________\______> CANCELLED (terminal)
//
// Service adapts Transition to the asynchronous workflow. Submit and
// SubmitCreate are the synchronous entry points: they run the role
// pre-check and publish a command envelope. HandleCreate and HandleUpdate
// are the command handlers. Confirming an appointment notifies patient and
// doctor concurrently, schedules reminders one hour before the date and
// enqueues the RUNNING transition at the date itself. HandleScheduledStatus
// runs that job; if the appointment changed meanwhile (cancelled, say) the
// precondition rejects it and the job is a logged no-op.
package appointment
