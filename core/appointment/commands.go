package appointment

import (
	"errors"
	"time"
)

// UpdateStatus is the payload of an update command.
type UpdateStatus struct {
	AppointmentID string `json:"appointmentId"`
	Status        Status `json:"status"`
	Role          Role   `json:"role"`
	UserID        string `json:"userId"`
	Reason        string `json:"reason,omitempty"`
}

func (c UpdateStatus) validate() error {
	var errs []error
	if c.AppointmentID == "" {
		errs = append(errs, errors.New("appointmentId is required"))
	}
	if !c.Status.Valid() {
		errs = append(errs, errors.New("status is invalid"))
	}
	if c.UserID == "" {
		errs = append(errs, errors.New("userId is required"))
	}
	return errors.Join(errs...)
}

// Create is the payload of a create command.
type Create struct {
	AppointmentID string        `json:"appointmentId"`
	UserID        string        `json:"userId"`
	PatientID     string        `json:"patientId"`
	DoctorID      string        `json:"doctorId"`
	Date          time.Time     `json:"date"`
	IsPaid        bool          `json:"isPaid"`
	PaymentMethod PaymentMethod `json:"paymentMethod,omitempty"`
}

func (c Create) validate() error {
	var errs []error
	if c.AppointmentID == "" {
		errs = append(errs, errors.New("appointmentId is required"))
	}
	if c.PatientID == "" {
		errs = append(errs, errors.New("patientId is required"))
	}
	if c.DoctorID == "" {
		errs = append(errs, errors.New("doctorId is required"))
	}
	if c.Date.IsZero() {
		errs = append(errs, errors.New("date is required"))
	}
	if c.PaymentMethod != "" && c.PaymentMethod != PaymentCash && c.PaymentMethod != PaymentOnline {
		errs = append(errs, errors.New("paymentMethod is invalid"))
	}
	return errors.Join(errs...)
}

// Appointment returns the PENDING appointment the command creates.
func (c Create) Appointment() Appointment {
	return Appointment{
		ID:            c.AppointmentID,
		PatientID:     c.PatientID,
		DoctorID:      c.DoctorID,
		Date:          c.Date.UTC(),
		Status:        StatusPending,
		IsPaid:        c.IsPaid,
		PaymentMethod: c.PaymentMethod,
	}
}

// ScheduledStatus is the payload of a delayed status job.
type ScheduledStatus struct {
	AppointmentID string `json:"appointmentId"`
	Status        Status `json:"status"`
}
