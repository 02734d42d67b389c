package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is wrapped by every lookup that matches no row.
var ErrNotFound = errors.New("not found")

// Account is a platform user as seen by the delivery core.
type Account struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	AvatarURL    string
	Role         string
	CreatedAt    time.Time
}

// Conversation is a two-party private thread. UserA < UserB always holds.
type Conversation struct {
	ID          int64
	UserA       int64
	UserB       int64
	LastMessage string
	UnreadA     int
	UnreadB     int
	Deleted     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID int64) bool {
	return c.UserA == userID || c.UserB == userID
}

// Other returns the counterpart of userID.
func (c *Conversation) Other(userID int64) int64 {
	if c.UserA == userID {
		return c.UserB
	}
	return c.UserA
}

// UnreadFor returns the unread counter of userID.
func (c *Conversation) UnreadFor(userID int64) int {
	if c.UserA == userID {
		return c.UnreadA
	}
	return c.UnreadB
}

// OrderedPair returns the canonical storage order of two participants.
func OrderedPair(a, b int64) (int64, int64) {
	if a < b {
		return a, b
	}
	return b, a
}

// Message is a persisted private message.
type Message struct {
	ID             int64
	ConversationID int64
	SenderID       int64
	Body           string
	CreatedAt      time.Time
	Read           bool
	ReadAt         *time.Time
	Edited         bool
	EditedAt       *time.Time
	Deleted        bool
}

// Notification is a durable, typed notification.
type Notification struct {
	ID          int64
	RecipientID int64
	Type        string
	Text        string
	ActorID     *int64
	EntityType  *string
	EntityID    *int64
	ActionURL   string
	Priority    string
	Read        bool
	CreatedAt   time.Time

	// ActorAvatar is filled at push time from the actor's current profile. Not persisted.
	ActorAvatar string
}

// DedupKey identifies notifications that must not repeat inside the dedup window.
type DedupKey struct {
	RecipientID int64
	Type        string
	EntityType  *string
	EntityID    *int64
	ActorID     *int64
}

// Activity is an entry of the admin activity feed.
type Activity struct {
	ID        int64
	Kind      string
	ActorID   *int64
	Summary   string
	CreatedAt time.Time
}

// CommentParent locates the content a comment belongs to.
type CommentParent struct {
	CommentID  int64
	ParentType string
	ParentID   int64
}

// AccountStore handles account persistence.
type AccountStore interface {
	// CreateAccount creates a new account with a hashed password.
	CreateAccount(ctx context.Context, acc *Account) error

	// GetAccountByID retrieves an account by ID.
	GetAccountByID(ctx context.Context, id int64) (*Account, error)

	// GetAccountByLogin retrieves an account by username or email (case-insensitive).
	GetAccountByLogin(ctx context.Context, login string) (*Account, error)

	// SearchAccounts searches accounts by username or email substring.
	SearchAccounts(ctx context.Context, query string, limit int) ([]*Account, error)

	// UpdateAvatar replaces an account's display image.
	UpdateAvatar(ctx context.Context, id int64, avatarURL string) error
}

// ConversationStore handles conversation and message persistence.
// Every mutating method runs in a single transaction.
type ConversationStore interface {
	// FindConversation returns the conversation of an unordered pair.
	FindConversation(ctx context.Context, a, b int64) (*Conversation, error)

	// CreateConversation inserts a conversation for an unordered pair.
	CreateConversation(ctx context.Context, a, b int64, at time.Time) (*Conversation, error)

	// GetConversation retrieves a conversation by ID, deleted or not.
	GetConversation(ctx context.Context, id int64) (*Conversation, error)

	// ListConversations lists active conversations of a user, most recent first.
	ListConversations(ctx context.Context, userID int64) ([]*Conversation, error)

	// SoftDeleteConversation flags a conversation deleted.
	SoftDeleteConversation(ctx context.Context, id int64) error

	// AppendMessage inserts msg, updates the preview and timestamp and
	// increments the recipient's unread counter.
	AppendMessage(ctx context.Context, msg *Message, preview string) error

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// ListMessages returns non-deleted messages newest first.
	ListMessages(ctx context.Context, conversationID int64, limit, offset int) ([]*Message, error)

	// MarkMessageRead flips the read flag once and decrements the reader's counter.
	// It reports whether the message changed.
	MarkMessageRead(ctx context.Context, messageID, readerID int64, at time.Time) (bool, error)

	// MarkConversationRead marks all messages addressed to reader as read,
	// resets the reader's counter and returns the affected message IDs.
	MarkConversationRead(ctx context.Context, conversationID, readerID int64, at time.Time) ([]int64, error)

	// EditMessage replaces a message body and sets the edited flag.
	EditMessage(ctx context.Context, messageID int64, body string, at time.Time) error

	// SoftDeleteMessage flags a message deleted, releasing its unread count.
	SoftDeleteMessage(ctx context.Context, messageID int64) error

	// UnreadTotal sums a user's unread counters over active conversations.
	UnreadTotal(ctx context.Context, userID int64) (int, error)
}

// NotificationStore handles notification persistence.
type NotificationStore interface {
	// NotificationExists reports whether a notification with key exists since the given time.
	NotificationExists(ctx context.Context, key DedupKey, since time.Time) (bool, error)

	// CreateNotification inserts a notification.
	CreateNotification(ctx context.Context, n *Notification) error

	// GetNotification retrieves a notification by ID.
	GetNotification(ctx context.Context, id int64) (*Notification, error)

	// ListNotifications returns a recipient's notifications newest first.
	ListNotifications(ctx context.Context, recipientID int64, limit, offset int) ([]*Notification, error)

	// CountUnreadNotifications counts unread notifications of a recipient.
	CountUnreadNotifications(ctx context.Context, recipientID int64) (int, error)

	// MarkNotificationRead marks one notification read.
	MarkNotificationRead(ctx context.Context, id int64) error

	// MarkAllNotificationsRead marks all of a recipient's notifications read.
	MarkAllNotificationsRead(ctx context.Context, recipientID int64) (int64, error)

	// DeleteNotification removes one notification.
	DeleteNotification(ctx context.Context, id int64) error

	// DeleteAllNotifications removes every notification of a recipient.
	DeleteAllNotifications(ctx context.Context, recipientID int64) (int64, error)

	// PurgeNotificationsBefore removes notifications created before cutoff.
	PurgeNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ActivityStore handles the admin activity feed.
type ActivityStore interface {
	// CreateActivity inserts an activity record.
	CreateActivity(ctx context.Context, a *Activity) error

	// ListRecentActivities returns the newest activities.
	ListRecentActivities(ctx context.Context, limit int) ([]*Activity, error)

	// CountActivities counts activities created since the given time (zero time counts all).
	CountActivities(ctx context.Context, since time.Time) (int, error)
}

// CommentStore exposes the comment tree owned by the content collaborators.
type CommentStore interface {
	// GetCommentParent returns the content a comment belongs to.
	GetCommentParent(ctx context.Context, commentID int64) (*CommentParent, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	AccountStore
	ConversationStore
	NotificationStore
	ActivityStore
	CommentStore

	// Close closes the underlying database connection.
	Close() error
}
