package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicflow/clinicflow/core/appointment"
	"github.com/clinicflow/clinicflow/integration/database/pg"
)

// Appointments implements appointment.Repository.
type Appointments struct {
	pool *pgxpool.Pool
}

var _ appointment.Repository = (*Appointments)(nil)

// NewAppointments creates the appointment repository.
func NewAppointments(pool *pgxpool.Pool) *Appointments {
	return &Appointments{pool: pool}
}

// FindByID loads one appointment.
func (r *Appointments) FindByID(ctx context.Context, id string) (appointment.Appointment, error) {
	var (
		a       appointment.Appointment
		status  string
		payment string
	)
	err := pg.ExecutorFrom(ctx, r.pool).QueryRow(ctx, `
		SELECT id, patient_id, doctor_id, date, status, is_paid, payment_method, cancellation_reason
		FROM appointments WHERE id = $1`, id).
		Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.Date, &status, &a.IsPaid, &payment, &a.CancellationReason)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return appointment.Appointment{}, fmt.Errorf("%w: %s", appointment.ErrNotFound, id)
		}
		return appointment.Appointment{}, fmt.Errorf("failed to load appointment %s: %w", id, err)
	}

	a.Status = appointment.Status(status)
	a.PaymentMethod = appointment.PaymentMethod(payment)
	a.Date = a.Date.UTC()
	return a, nil
}

// Create inserts an appointment. An existing id yields appointment.ErrAlreadyExists.
func (r *Appointments) Create(ctx context.Context, a *appointment.Appointment) error {
	if a == nil {
		return ErrAppointmentNil
	}

	status := a.Status
	if status == "" {
		status = appointment.StatusPending
	}

	_, err := pg.ExecutorFrom(ctx, r.pool).Exec(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, date, status, is_paid, payment_method, cancellation_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.PatientID, a.DoctorID, a.Date.UTC(), string(status), a.IsPaid, string(a.PaymentMethod), a.CancellationReason)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", appointment.ErrAlreadyExists, a.ID)
		}
		return fmt.Errorf("failed to insert appointment %s: %w", a.ID, err)
	}

	a.Status = status
	return nil
}

// Update applies the non-empty fields of patch.
func (r *Appointments) Update(ctx context.Context, id string, patch appointment.Patch) error {
	if patch.Status == "" && patch.IsPaid == nil && patch.PaymentMethod == nil && patch.CancellationReason == nil {
		return ErrEmptyPatch
	}

	var payment *string
	if patch.PaymentMethod != nil {
		s := string(*patch.PaymentMethod)
		payment = &s
	}

	tag, err := pg.ExecutorFrom(ctx, r.pool).Exec(ctx, `
		UPDATE appointments SET
			status = COALESCE(NULLIF($2, ''), status),
			is_paid = COALESCE($3, is_paid),
			payment_method = COALESCE($4, payment_method),
			cancellation_reason = COALESCE($5, cancellation_reason),
			updated_at = now()
		WHERE id = $1`,
		id, string(patch.Status), patch.IsPaid, payment, patch.CancellationReason)
	if err != nil {
		return fmt.Errorf("failed to update appointment %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", appointment.ErrNotFound, id)
	}
	return nil
}
