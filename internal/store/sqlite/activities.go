package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vovakirdan/agora-server/internal/store"
)

// CreateActivity inserts an activity record.
func (s *SQLiteStore) CreateActivity(ctx context.Context, a *store.Activity) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO activities (kind, actor_id, summary, created_at) VALUES (?, ?, ?, ?)`,
		a.Kind, a.ActorID, a.Summary, utc(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	a.ID = id
	return nil
}

// ListRecentActivities returns the newest activities.
func (s *SQLiteStore) ListRecentActivities(ctx context.Context, limit int) ([]*store.Activity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, actor_id, summary, created_at
		FROM activities
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	activities := make([]*store.Activity, 0, limit)
	for rows.Next() {
		var a store.Activity
		var actorID sql.NullInt64
		if err := rows.Scan(&a.ID, &a.Kind, &actorID, &a.Summary, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.ActorID = nullInt64Ptr(actorID)
		activities = append(activities, &a)
	}
	return activities, rows.Err()
}

// CountActivities counts activities created since the given time (zero time counts all).
func (s *SQLiteStore) CountActivities(ctx context.Context, since time.Time) (int, error) {
	var count int
	var err error
	if since.IsZero() {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities`).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM activities WHERE created_at >= ?`, utc(since)).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("count activities: %w", err)
	}
	return count, nil
}
