package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicflow/clinicflow/core/appointment"
	"github.com/clinicflow/clinicflow/core/notification"
	"github.com/clinicflow/clinicflow/integration/database/pg"
)

// Users implements notification.UserDirectory.
type Users struct {
	pool *pgxpool.Pool
}

var _ notification.UserDirectory = (*Users)(nil)

// NewUsers creates the user directory.
func NewUsers(pool *pgxpool.Pool) *Users {
	return &Users{pool: pool}
}

// FindByID loads a user. A missing user yields notification.ErrUserNotFound.
func (u *Users) FindByID(ctx context.Context, id string) (notification.User, error) {
	var user notification.User
	err := pg.ExecutorFrom(ctx, u.pool).QueryRow(ctx,
		`SELECT id, name, email FROM users WHERE id = $1`, id).
		Scan(&user.ID, &user.Name, &user.Email)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return notification.User{}, fmt.Errorf("%w: %s", notification.ErrUserNotFound, id)
		}
		return notification.User{}, fmt.Errorf("failed to load user %s: %w", id, err)
	}
	return user, nil
}

// Upsert creates or updates a user record.
func (u *Users) Upsert(ctx context.Context, user notification.User, role appointment.Role) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", role)
	}
	_, err := pg.ExecutorFrom(ctx, u.pool).Exec(ctx, `
		INSERT INTO users (id, name, email, role) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email, role = EXCLUDED.role`,
		user.ID, user.Name, user.Email, string(role))
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", user.ID, err)
	}
	return nil
}
