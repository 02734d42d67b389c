package messaging

import (
	"time"

	"github.com/samber/lo"

	"github.com/vovakirdan/agora-server/internal/store"
)

// MessageView is the wire form of a message.
type MessageView struct {
	ID             int64      `json:"id"`
	ConversationID int64      `json:"conversation_id"`
	SenderID       int64      `json:"sender_id"`
	Body           string     `json:"body"`
	CreatedAt      time.Time  `json:"created_at"`
	Read           bool       `json:"is_read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	Edited         bool       `json:"is_edited"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
}

// NewMessageView maps a stored message.
func NewMessageView(m *store.Message) MessageView {
	return MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Body:           m.Body,
		CreatedAt:      m.CreatedAt,
		Read:           m.Read,
		ReadAt:         m.ReadAt,
		Edited:         m.Edited,
		EditedAt:       m.EditedAt,
	}
}

// NewMessageViews maps a page of stored messages.
func NewMessageViews(msgs []*store.Message) []MessageView {
	return lo.Map(msgs, func(m *store.Message, _ int) MessageView {
		return NewMessageView(m)
	})
}

// UserView is the public face of an account.
type UserView struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// NewUserView maps an account, hiding credentials and email.
func NewUserView(acc *store.Account) UserView {
	return UserView{ID: acc.ID, Username: acc.Username, AvatarURL: acc.AvatarURL}
}

// ConversationView is a conversation as seen by one participant.
type ConversationView struct {
	ID          int64     `json:"id"`
	Other       UserView  `json:"other_user"`
	LastMessage string    `json:"last_message"`
	UnreadCount int       `json:"unread_count"`
	Deleted     bool      `json:"is_deleted,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ReadReceipt tells a sender one message was read.
type ReadReceipt struct {
	ConversationID int64     `json:"conversation_id"`
	MessageID      int64     `json:"message_id"`
	ReaderID       int64     `json:"reader_id"`
	ReadAt         time.Time `json:"read_at"`
}

// BulkReadReceipt tells a sender that a reader caught up on a conversation.
type BulkReadReceipt struct {
	ConversationID int64     `json:"conversation_id"`
	ReaderID       int64     `json:"reader_id"`
	MessageIDs     []int64   `json:"message_ids"`
	ReadAt         time.Time `json:"read_at"`
}

// MessageDeleted tells the counterpart a message was withdrawn.
type MessageDeleted struct {
	ConversationID int64 `json:"conversation_id"`
	MessageID      int64 `json:"message_id"`
}
