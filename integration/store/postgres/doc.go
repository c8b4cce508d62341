// Package postgres stores appointments, notifications and users in
// PostgreSQL and implements appointment.Repository, notification.Store and
// notification.UserDirectory.
//
// Writes run inside a transaction stored with pg.WithTx when there is one.
// Notification inserts are idempotent on id, so a redelivered task does not
// produce a second row.
//
//	if err := pg.Migrate(ctx, pool, log, store.Migrations()); err != nil {
//		return err
//	}
//	appointments := store.NewAppointments(pool)
//	notifications := store.NewNotifications(pool)
//	users := store.NewUsers(pool)
package postgres
