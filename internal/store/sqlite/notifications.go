package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vovakirdan/agora-server/internal/store"
)

const notificationColumns = `id, recipient_id, type, text, actor_id, entity_type, entity_id, action_url, priority, is_read, created_at`

func scanNotification(row interface{ Scan(...any) error }) (*store.Notification, error) {
	var n store.Notification
	var actorID, entityID sql.NullInt64
	var entityType sql.NullString
	if err := row.Scan(
		&n.ID, &n.RecipientID, &n.Type, &n.Text, &actorID, &entityType, &entityID,
		&n.ActionURL, &n.Priority, &n.Read, &n.CreatedAt,
	); err != nil {
		return nil, err
	}
	n.ActorID = nullInt64Ptr(actorID)
	n.EntityType = nullStringPtr(entityType)
	n.EntityID = nullInt64Ptr(entityID)
	return &n, nil
}

// NotificationExists reports whether a notification with key exists since the given time.
// IS comparisons make absent (NULL) parts of the key match each other.
func (s *SQLiteStore) NotificationExists(ctx context.Context, key store.DedupKey, since time.Time) (bool, error) {
	query := `
		SELECT 1 FROM notifications
		WHERE recipient_id = ?
		  AND type = ?
		  AND entity_type IS ?
		  AND entity_id IS ?
		  AND actor_id IS ?
		  AND created_at >= ?
		LIMIT 1
	`
	var exists int
	err := s.db.QueryRowContext(ctx, query,
		key.RecipientID, key.Type, key.EntityType, key.EntityID, key.ActorID, utc(since),
	).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query notification dedup: %w", err)
	}
	return true, nil
}

// CreateNotification inserts a notification.
func (s *SQLiteStore) CreateNotification(ctx context.Context, n *store.Notification) error {
	query := `
		INSERT INTO notifications
			(recipient_id, type, text, actor_id, entity_type, entity_id, action_url, priority, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		n.RecipientID, n.Type, n.Text, n.ActorID, n.EntityType, n.EntityID,
		n.ActionURL, n.Priority, utc(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	n.ID = id
	return nil
}

// GetNotification retrieves a notification by ID.
func (s *SQLiteStore) GetNotification(ctx context.Context, id int64) (*store.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = ?`
	n, err := scanNotification(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound("notification", err)
	}
	return n, nil
}

// ListNotifications returns a recipient's notifications newest first.
func (s *SQLiteStore) ListNotifications(ctx context.Context, recipientID int64, limit, offset int) ([]*store.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE recipient_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, recipientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	notifications := make([]*store.Notification, 0, limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// CountUnreadNotifications counts unread notifications of a recipient.
func (s *SQLiteStore) CountUnreadNotifications(ctx context.Context, recipientID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND is_read = 0`, recipientID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkNotificationRead marks one notification read.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return expectOneRow(result, "notification")
}

// MarkAllNotificationsRead marks all of a recipient's notifications read.
func (s *SQLiteStore) MarkAllNotificationsRead(ctx context.Context, recipientID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE recipient_id = ? AND is_read = 0`, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return result.RowsAffected()
}

// DeleteNotification removes one notification.
func (s *SQLiteStore) DeleteNotification(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return expectOneRow(result, "notification")
}

// DeleteAllNotifications removes every notification of a recipient.
func (s *SQLiteStore) DeleteAllNotifications(ctx context.Context, recipientID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE recipient_id = ?`, recipientID)
	if err != nil {
		return 0, fmt.Errorf("delete notifications: %w", err)
	}
	return result.RowsAffected()
}

// PurgeNotificationsBefore removes notifications created before cutoff.
func (s *SQLiteStore) PurgeNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE created_at < ?`, utc(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	return result.RowsAffected()
}
