package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicflow/clinicflow/core/notification"
	"github.com/clinicflow/clinicflow/integration/database/pg"
)

// Notifications implements notification.Store.
type Notifications struct {
	pool *pgxpool.Pool
}

var _ notification.Store = (*Notifications)(nil)

// NewNotifications creates the notification store.
func NewNotifications(pool *pgxpool.Pool) *Notifications {
	return &Notifications{pool: pool}
}

// Create inserts n. Inserting an existing id is a no-op.
func (s *Notifications) Create(ctx context.Context, n *notification.Notification) error {
	if n == nil {
		return ErrNotificationNil
	}

	_, err := pg.ExecutorFrom(ctx, s.pool).Exec(ctx, `
		INSERT INTO notifications (id, user_id, message, metadata, trace_id, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		n.ID, n.UserID, n.Message, n.Metadata, n.TraceID, n.Read, n.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert notification %s: %w", n.ID, err)
	}
	return nil
}

// ListRecent returns up to limit notifications of a user, newest first.
func (s *Notifications) ListRecent(ctx context.Context, userID string, limit int) ([]notification.Notification, error) {
	if limit <= 0 {
		limit = notification.DefaultRecentLimit
	}

	rows, err := pg.ExecutorFrom(ctx, s.pool).Query(ctx, `
		SELECT id, user_id, message, metadata, trace_id, read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications for %s: %w", userID, err)
	}

	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (notification.Notification, error) {
		var n notification.Notification
		err := row.Scan(&n.ID, &n.UserID, &n.Message, &n.Metadata, &n.TraceID, &n.Read, &n.CreatedAt)
		n.CreatedAt = n.CreatedAt.UTC()
		return n, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan notifications for %s: %w", userID, err)
	}
	return list, nil
}

// MarkRead flags one notification of a user as read.
func (s *Notifications) MarkRead(ctx context.Context, userID string, id uuid.UUID) error {
	_, err := pg.ExecutorFrom(ctx, s.pool).Exec(ctx,
		`UPDATE notifications SET read = true WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}
