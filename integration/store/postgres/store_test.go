package postgres_test

import (
	"context"
	"io/fs"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicflow/clinicflow/core/appointment"
	"github.com/clinicflow/clinicflow/core/notification"
	"github.com/clinicflow/clinicflow/integration/database/pg"
	store "github.com/clinicflow/clinicflow/integration/store/postgres"
)

func TestMigrations_Embedded(t *testing.T) {
	t.Parallel()

	m := store.Migrations()
	assert.Equal(t, store.MigrationsTable, m.Table)
	names, err := fs.Glob(m.FS, "*.sql")
	require.NoError(t, err)
	assert.Contains(t, names, "00001_clinic.sql")
}

func TestAppointments_EmptyPatch(t *testing.T) {
	t.Parallel()

	err := store.NewAppointments(nil).Update(context.Background(), "a-1", appointment.Patch{})
	assert.ErrorIs(t, err, store.ErrEmptyPatch)
}

func livePool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("PG_CONN_URL")
	if url == "" {
		t.Skip("PG_CONN_URL not set")
	}

	ctx := context.Background()
	pool, err := pg.Connect(ctx, pg.Config{ConnectionString: url, RetryAttempts: 3})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, pg.Migrate(ctx, pool, nil, store.Migrations()))
	return pool
}

func TestAppointments_Live(t *testing.T) {
	pool := livePool(t)
	repo := store.NewAppointments(pool)
	ctx := context.Background()

	a := &appointment.Appointment{
		ID:        uuid.NewString(),
		PatientID: "patient-1",
		DoctorID:  "doctor-1",
		Date:      time.Now().Add(48 * time.Hour).Truncate(time.Second).UTC(),
	}
	require.NoError(t, repo.Create(ctx, a))
	assert.Equal(t, appointment.StatusPending, a.Status)
	assert.ErrorIs(t, repo.Create(ctx, a), appointment.ErrAlreadyExists)

	paid := true
	cash := appointment.PaymentCash
	require.NoError(t, repo.Update(ctx, a.ID, appointment.Patch{
		Status:        appointment.StatusCompleted,
		IsPaid:        &paid,
		PaymentMethod: &cash,
	}))

	got, err := repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCompleted, got.Status)
	assert.True(t, got.IsPaid)
	assert.Equal(t, appointment.PaymentCash, got.PaymentMethod)
	assert.True(t, a.Date.Equal(got.Date))

	_, err = repo.FindByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, appointment.ErrNotFound)
	assert.ErrorIs(t, repo.Update(ctx, uuid.NewString(), appointment.Patch{Status: appointment.StatusRunning}), appointment.ErrNotFound)
}

func TestNotifications_Live(t *testing.T) {
	pool := livePool(t)
	s := store.NewNotifications(pool)
	ctx := context.Background()
	userID := "user-" + uuid.NewString()

	first := &notification.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Message:   "Your appointment is confirmed",
		Metadata:  map[string]any{"appointmentId": "a-1"},
		CreatedAt: time.Now().Add(-time.Minute).UTC(),
	}
	second := &notification.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Message:   "Reminder: your appointment starts in one hour",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.Create(ctx, first))
	require.NoError(t, s.Create(ctx, first))
	require.NoError(t, s.Create(ctx, second))

	list, err := s.ListRecent(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, "a-1", list[1].Metadata["appointmentId"])

	require.NoError(t, s.MarkRead(ctx, userID, first.ID))
	list, err = s.ListRecent(ctx, userID, 10)
	require.NoError(t, err)
	assert.True(t, list[1].Read)
}

func TestUsers_Live(t *testing.T) {
	pool := livePool(t)
	users := store.NewUsers(pool)
	ctx := context.Background()
	id := "user-" + uuid.NewString()

	require.NoError(t, users.Upsert(ctx, notification.User{ID: id, Name: "Ana", Email: "ana@example.com"}, appointment.RolePatient))
	require.NoError(t, users.Upsert(ctx, notification.User{ID: id, Name: "Ana M.", Email: "ana@example.com"}, appointment.RolePatient))
	assert.Error(t, users.Upsert(ctx, notification.User{ID: id}, appointment.Role("NURSE")))

	u, err := users.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Ana M.", u.Name)

	_, err = users.FindByID(ctx, "missing-"+uuid.NewString())
	assert.ErrorIs(t, err, notification.ErrUserNotFound)
}
