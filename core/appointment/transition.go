package appointment

import (
	"fmt"
	"strings"
	"time"
)

// ReminderLead is how long before the appointment the reminders go out.
const ReminderLead = time.Hour

const dateLayout = "Mon, 02 Jan 2006 15:04 MST"

// Precheck runs the checks that do not depend on the current status: the
// actor's role and the cancellation reason. Submit uses it to reject
// commands synchronously.
func Precheck(requested Status, actor Role, reason string) error {
	switch requested {
	case StatusConfirmed, StatusRunning, StatusCompleted:
		if actor != RoleAdmin {
			return &TransitionError{Kind: ErrForbiddenTransition, To: requested, Role: actor}
		}
	case StatusCancelled:
		if !actor.Valid() {
			return &TransitionError{Kind: ErrForbiddenTransition, To: requested, Role: actor}
		}
		if strings.TrimSpace(reason) == "" {
			return &TransitionError{Kind: ErrReasonRequired, To: requested, Role: actor}
		}
	default:
		return &TransitionError{Kind: ErrInvalidTransition, To: requested, Role: actor}
	}
	return nil
}

// Transition decides whether current may move to requested on behalf of
// actor. Role checks run first, then the current status is checked.
func Transition(current Appointment, requested Status, actor Role, reason string) (Decision, error) {
	if err := Precheck(requested, actor, reason); err != nil {
		te := err.(*TransitionError)
		te.From = current.Status
		te.AppointmentID = current.ID
		return Decision{}, te
	}

	if !allowed(current.Status, requested) {
		return Decision{}, &TransitionError{
			Kind:          ErrInvalidTransition,
			From:          current.Status,
			To:            requested,
			Role:          actor,
			AppointmentID: current.ID,
		}
	}

	d := Decision{
		From:  current.Status,
		To:    requested,
		Patch: Patch{Status: requested},
	}

	switch requested {
	case StatusCancelled:
		r := strings.TrimSpace(reason)
		d.Patch.CancellationReason = &r
	case StatusCompleted:
		if !current.IsPaid {
			paid, method := true, PaymentCash
			d.Patch.IsPaid = &paid
			d.Patch.PaymentMethod = &method
		}
	}

	d.Notify, d.Remind, d.Schedule = effects(d.Patch.Apply(current), requested)
	return d, nil
}

// Replay rebuilds the side effects of a transition that is already
// persisted, for a command redelivered after its patch was applied.
func Replay(current Appointment) Decision {
	d := Decision{From: current.Status, To: current.Status}
	d.Notify, d.Remind, d.Schedule = effects(current, current.Status)
	return d
}

func allowed(from, to Status) bool {
	switch to {
	case StatusConfirmed:
		return from == StatusPending
	case StatusRunning:
		return from == StatusConfirmed
	case StatusCompleted:
		return from == StatusRunning
	case StatusCancelled:
		return from.Valid() && !from.Terminal()
	}
	return false
}

func effects(a Appointment, to Status) (notify, remind []Notice, schedule *ScheduledTransition) {
	when := a.Date.UTC().Format(dateLayout)

	switch to {
	case StatusConfirmed:
		msg := fmt.Sprintf("Your appointment on %s has been confirmed.", when)
		reminder := fmt.Sprintf("Reminder: your appointment starts at %s.", when)
		remindAt := a.Date.Add(-ReminderLead)
		notify = []Notice{
			{UserID: a.PatientID, Message: msg},
			{UserID: a.DoctorID, Message: msg},
		}
		remind = []Notice{
			{UserID: a.PatientID, Message: reminder, At: remindAt},
			{UserID: a.DoctorID, Message: reminder, At: remindAt},
		}
		schedule = &ScheduledTransition{Status: StatusRunning, At: a.Date}
	case StatusCancelled:
		notify = []Notice{{
			UserID:  a.PatientID,
			Message: fmt.Sprintf("Your appointment on %s has been cancelled: %s", when, a.CancellationReason),
		}}
	}

	return notify, remind, schedule
}
