package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/vovakirdan/agora-server/internal/store"
)

const accountColumns = `id, username, COALESCE(email, ''), password_hash, avatar_url, role, created_at`

func scanAccount(row interface{ Scan(...any) error }) (*store.Account, error) {
	var acc store.Account
	if err := row.Scan(
		&acc.ID,
		&acc.Username,
		&acc.Email,
		&acc.PasswordHash,
		&acc.AvatarURL,
		&acc.Role,
		&acc.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &acc, nil
}

// CreateAccount creates a new account with a hashed password.
func (s *SQLiteStore) CreateAccount(ctx context.Context, acc *store.Account) error {
	if acc.Role == "" {
		acc.Role = "user"
	}
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO accounts (username, email, password_hash, avatar_url, role, created_at)
		VALUES (?, NULLIF(?, ''), ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		acc.Username, acc.Email, acc.PasswordHash, acc.AvatarURL, acc.Role, utc(acc.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	acc.ID = id
	return nil
}

// GetAccountByID retrieves an account by ID.
func (s *SQLiteStore) GetAccountByID(ctx context.Context, id int64) (*store.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`
	acc, err := scanAccount(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound("account", err)
	}
	return acc, nil
}

// GetAccountByLogin retrieves an account by username or email (case-insensitive).
func (s *SQLiteStore) GetAccountByLogin(ctx context.Context, login string) (*store.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = ? OR email = ? LIMIT 1`
	login = strings.TrimSpace(login)
	acc, err := scanAccount(s.db.QueryRowContext(ctx, query, login, login))
	if err != nil {
		return nil, notFound("account", err)
	}
	return acc, nil
}

// SearchAccounts searches accounts by username or email substring.
func (s *SQLiteStore) SearchAccounts(ctx context.Context, query string, limit int) ([]*store.Account, error) {
	sqlQuery := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE username LIKE ? OR email LIKE ?
		ORDER BY username ASC
		LIMIT ?
	`
	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, sqlQuery, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]*store.Account, 0)
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

// UpdateAvatar replaces an account's display image.
func (s *SQLiteStore) UpdateAvatar(ctx context.Context, id int64, avatarURL string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE accounts SET avatar_url = ? WHERE id = ?`, avatarURL, id)
	if err != nil {
		return fmt.Errorf("update avatar: %w", err)
	}
	return expectOneRow(result, "account")
}

// GetCommentParent returns the content a comment belongs to.
func (s *SQLiteStore) GetCommentParent(ctx context.Context, commentID int64) (*store.CommentParent, error) {
	var parent store.CommentParent
	err := s.db.QueryRowContext(ctx,
		`SELECT id, parent_type, parent_id FROM comments WHERE id = ?`, commentID,
	).Scan(&parent.CommentID, &parent.ParentType, &parent.ParentID)
	if err != nil {
		return nil, notFound("comment", err)
	}
	return &parent, nil
}

func expectOneRow(result sql.Result, what string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return nil
}
