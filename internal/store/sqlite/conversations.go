package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vovakirdan/agora-server/internal/store"
)

const conversationColumns = `id, user_a, user_b, last_message, unread_a, unread_b, deleted, created_at, updated_at`

func scanConversation(row interface{ Scan(...any) error }) (*store.Conversation, error) {
	var c store.Conversation
	if err := row.Scan(
		&c.ID, &c.UserA, &c.UserB, &c.LastMessage,
		&c.UnreadA, &c.UnreadB, &c.Deleted, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

const messageColumns = `id, conversation_id, sender_id, body, created_at, is_read, read_at, is_edited, edited_at, is_deleted`

func scanMessage(row interface{ Scan(...any) error }) (*store.Message, error) {
	var m store.Message
	var readAt, editedAt sql.NullTime
	if err := row.Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.CreatedAt,
		&m.Read, &readAt, &m.Edited, &editedAt, &m.Deleted,
	); err != nil {
		return nil, err
	}
	m.ReadAt = nullTimePtr(readAt)
	m.EditedAt = nullTimePtr(editedAt)
	return &m, nil
}

// FindConversation returns the conversation of an unordered pair.
func (s *SQLiteStore) FindConversation(ctx context.Context, a, b int64) (*store.Conversation, error) {
	lo, hi := store.OrderedPair(a, b)
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE user_a = ? AND user_b = ?`
	c, err := scanConversation(s.db.QueryRowContext(ctx, query, lo, hi))
	if err != nil {
		return nil, notFound("conversation", err)
	}
	return c, nil
}

// CreateConversation inserts a conversation for an unordered pair. If a
// concurrent caller won the race, the existing row is returned.
func (s *SQLiteStore) CreateConversation(ctx context.Context, a, b int64, at time.Time) (*store.Conversation, error) {
	lo, hi := store.OrderedPair(a, b)
	query := `
		INSERT INTO conversations (user_a, user_b, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, lo, hi, utc(at), utc(at))
	if err != nil {
		if isUniqueViolation(err) {
			return s.FindConversation(ctx, lo, hi)
		}
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}
	return s.GetConversation(ctx, id)
}

// GetConversation retrieves a conversation by ID, deleted or not.
func (s *SQLiteStore) GetConversation(ctx context.Context, id int64) (*store.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = ?`
	c, err := scanConversation(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound("conversation", err)
	}
	return c, nil
}

// ListConversations lists active conversations of a user, most recent first.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID int64) ([]*store.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE (user_a = ? OR user_b = ?) AND deleted = 0
		ORDER BY updated_at DESC, id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]*store.Conversation, 0)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

// SoftDeleteConversation flags a conversation deleted.
func (s *SQLiteStore) SoftDeleteConversation(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `UPDATE conversations SET deleted = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return expectOneRow(result, "conversation")
}

// AppendMessage inserts msg, updates the preview and timestamp, revives a
// soft-deleted conversation and increments the recipient's unread counter.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *store.Message, preview string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO messages (conversation_id, sender_id, body, created_at)
			VALUES (?, ?, ?, ?)
		`, msg.ConversationID, msg.SenderID, msg.Body, utc(msg.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("get last insert id: %w", err)
		}

		result, err = tx.ExecContext(ctx, `
			UPDATE conversations
			SET last_message = ?,
			    updated_at = ?,
			    deleted = 0,
			    unread_a = unread_a + CASE WHEN user_b = ? THEN 1 ELSE 0 END,
			    unread_b = unread_b + CASE WHEN user_a = ? THEN 1 ELSE 0 END
			WHERE id = ?
		`, preview, utc(msg.CreatedAt), msg.SenderID, msg.SenderID, msg.ConversationID)
		if err != nil {
			return fmt.Errorf("update conversation: %w", err)
		}
		if err := expectOneRow(result, "conversation"); err != nil {
			return err
		}

		msg.ID = id
		return nil
	})
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = ?`
	m, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound("message", err)
	}
	return m, nil
}

// ListMessages returns non-deleted messages newest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID int64, limit, offset int) ([]*store.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = ? AND is_deleted = 0
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MarkMessageRead flips the read flag once and decrements the reader's counter.
func (s *SQLiteStore) MarkMessageRead(ctx context.Context, messageID, readerID int64, at time.Time) (bool, error) {
	changed := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var conversationID int64
		if err := tx.QueryRowContext(ctx,
			`SELECT conversation_id FROM messages WHERE id = ?`, messageID,
		).Scan(&conversationID); err != nil {
			return notFound("message", err)
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE messages SET is_read = 1, read_at = ?
			WHERE id = ? AND is_read = 0 AND is_deleted = 0
		`, utc(at), messageID)
		if err != nil {
			return fmt.Errorf("mark message read: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			return nil
		}

		if err := decrementUnread(ctx, tx, conversationID, readerID); err != nil {
			return err
		}
		changed = true
		return nil
	})
	return changed, err
}

// MarkConversationRead marks all messages addressed to reader as read and
// resets the reader's counter.
func (s *SQLiteStore) MarkConversationRead(ctx context.Context, conversationID, readerID int64, at time.Time) ([]int64, error) {
	var ids []int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id FROM messages
			WHERE conversation_id = ? AND sender_id != ? AND is_read = 0 AND is_deleted = 0
			ORDER BY id ASC
		`, conversationID, readerID)
		if err != nil {
			return fmt.Errorf("query unread messages: %w", err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scan message id: %w", err)
			}
			ids = append(ids, id)
		}
		if err := rows.Close(); err != nil {
			return fmt.Errorf("close rows: %w", err)
		}

		if len(ids) > 0 {
			if _, err := tx.ExecContext(ctx, `
				UPDATE messages SET is_read = 1, read_at = ?
				WHERE conversation_id = ? AND sender_id != ? AND is_read = 0 AND is_deleted = 0
			`, utc(at), conversationID, readerID); err != nil {
				return fmt.Errorf("mark messages read: %w", err)
			}
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE conversations
			SET unread_a = CASE WHEN user_a = ? THEN 0 ELSE unread_a END,
			    unread_b = CASE WHEN user_b = ? THEN 0 ELSE unread_b END
			WHERE id = ?
		`, readerID, readerID, conversationID)
		if err != nil {
			return fmt.Errorf("reset unread counter: %w", err)
		}
		return expectOneRow(result, "conversation")
	})
	return ids, err
}

// EditMessage replaces a message body and sets the edited flag.
func (s *SQLiteStore) EditMessage(ctx context.Context, messageID int64, body string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE messages SET body = ?, is_edited = 1, edited_at = ?
		WHERE id = ? AND is_deleted = 0
	`, body, utc(at), messageID)
	if err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return expectOneRow(result, "message")
}

// SoftDeleteMessage flags a message deleted. An unread message releases the
// recipient's unread count in the same transaction.
func (s *SQLiteStore) SoftDeleteMessage(ctx context.Context, messageID int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var conversationID, senderID int64
		var read, deleted bool
		if err := tx.QueryRowContext(ctx,
			`SELECT conversation_id, sender_id, is_read, is_deleted FROM messages WHERE id = ?`, messageID,
		).Scan(&conversationID, &senderID, &read, &deleted); err != nil {
			return notFound("message", err)
		}
		if deleted {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `UPDATE messages SET is_deleted = 1 WHERE id = ?`, messageID); err != nil {
			return fmt.Errorf("delete message: %w", err)
		}
		if read {
			return nil
		}

		var userA, userB int64
		if err := tx.QueryRowContext(ctx,
			`SELECT user_a, user_b FROM conversations WHERE id = ?`, conversationID,
		).Scan(&userA, &userB); err != nil {
			return notFound("conversation", err)
		}
		recipient := userA
		if senderID == userA {
			recipient = userB
		}
		return decrementUnread(ctx, tx, conversationID, recipient)
	})
}

// UnreadTotal sums a user's unread counters over active conversations.
func (s *SQLiteStore) UnreadTotal(ctx context.Context, userID int64) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN user_a = ? THEN unread_a ELSE unread_b END), 0)
		FROM conversations
		WHERE (user_a = ? OR user_b = ?) AND deleted = 0
	`, userID, userID, userID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("query unread total: %w", err)
	}
	return total, nil
}

func decrementUnread(ctx context.Context, tx *sql.Tx, conversationID, userID int64) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE conversations
		SET unread_a = CASE WHEN user_a = ? AND unread_a > 0 THEN unread_a - 1 ELSE unread_a END,
		    unread_b = CASE WHEN user_b = ? AND unread_b > 0 THEN unread_b - 1 ELSE unread_b END
		WHERE id = ?
	`, userID, userID, conversationID)
	if err != nil {
		return fmt.Errorf("decrement unread counter: %w", err)
	}
	return expectOneRow(result, "conversation")
}
