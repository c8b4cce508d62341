package appointment

import "time"

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusConfirmed, StatusRunning, StatusCompleted, StatusCancelled}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusRunning, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// PaymentMethod is how an appointment was paid.
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "CASH"
	PaymentOnline PaymentMethod = "ONLINE"
)

// Role is the role of the actor requesting a transition.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleDoctor  Role = "DOCTOR"
	RolePatient Role = "PATIENT"
)

// Roles lists every known role.
var Roles = []Role{RoleAdmin, RoleDoctor, RolePatient}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RolePatient:
		return true
	}
	return false
}

// Appointment is the state machine's view of an appointment row.
type Appointment struct {
	ID                 string        `json:"id"`
	PatientID          string        `json:"patientId"`
	DoctorID           string        `json:"doctorId"`
	Date               time.Time     `json:"date"`
	Status             Status        `json:"status"`
	IsPaid             bool          `json:"isPaid"`
	PaymentMethod      PaymentMethod `json:"paymentMethod,omitempty"`
	CancellationReason string        `json:"cancellationReason,omitempty"`
}

// Patch is the set of fields a transition changes. Nil pointers are left untouched.
type Patch struct {
	Status             Status
	IsPaid             *bool
	PaymentMethod      *PaymentMethod
	CancellationReason *string
}

// Apply returns a with the patch applied.
func (p Patch) Apply(a Appointment) Appointment {
	if p.Status != "" {
		a.Status = p.Status
	}
	if p.IsPaid != nil {
		a.IsPaid = *p.IsPaid
	}
	if p.PaymentMethod != nil {
		a.PaymentMethod = *p.PaymentMethod
	}
	if p.CancellationReason != nil {
		a.CancellationReason = *p.CancellationReason
	}
	return a
}

// Notice is a notification side effect. A zero At means send now.
type Notice struct {
	UserID  string
	Message string
	At      time.Time
}

// ScheduledTransition is a status change to run later by the job scheduler.
type ScheduledTransition struct {
	Status Status
	At     time.Time
}

// Decision is the outcome of an accepted transition.
type Decision struct {
	From     Status
	To       Status
	Patch    Patch
	Notify   []Notice
	Remind   []Notice
	Schedule *ScheduledTransition
}

// HasEffects reports whether the decision dispatches anything besides the patch.
func (d Decision) HasEffects() bool {
	return len(d.Notify) > 0 || len(d.Remind) > 0 || d.Schedule != nil
}
