// Package messaging implements two-party private conversations with
// unread bookkeeping, read receipts, edits and soft deletes.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/agora-server/internal/core"
	"github.com/vovakirdan/agora-server/internal/proto"
	"github.com/vovakirdan/agora-server/internal/store"
)

const (
	// DefaultMaxMessageLength applies when the configured limit is not positive.
	DefaultMaxMessageLength = 5000
	// PreviewLength is the rune budget of a conversation's last-message preview.
	PreviewLength = 100
	// DefaultPageSize applies when a page size is not given.
	DefaultPageSize = 20
	// MaxPageSize bounds GetMessages pages.
	MaxPageSize = 100
	// SearchLimit bounds SearchUsers results.
	SearchLimit = 20
)

// Pusher delivers envelopes to users by account id without blocking.
type Pusher interface {
	ToUser(userID int64, env proto.Envelope)
}

// Store is the persistence the messaging service needs.
type Store interface {
	store.AccountStore
	store.ConversationStore
}

// Service implements the messaging domain.
type Service struct {
	store  Store
	push   Pusher
	clock  clock.Clock
	maxLen int
	log    *zerolog.Logger
}

// NewService creates a messaging service.
func NewService(st Store, pusher Pusher, clk clock.Clock, maxLen int, logger *zerolog.Logger) *Service {
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}
	return &Service{
		store:  st,
		push:   pusher,
		clock:  clk,
		maxLen: maxLen,
		log:    logger,
	}
}

// StartOrGetConversation returns the conversation between a and b, creating
// it on first use. Argument order does not matter.
func (s *Service) StartOrGetConversation(ctx context.Context, a, b int64) (*store.Conversation, error) {
	if a == b {
		return nil, core.Validation(core.ErrCodeSelfConversation, "cannot start a conversation with yourself")
	}
	if _, err := s.store.GetAccountByID(ctx, b); err != nil {
		return nil, translate(err, "user")
	}

	conv, err := s.store.FindConversation(ctx, a, b)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("find conversation: %w", err)
	}

	conv, err = s.store.CreateConversation(ctx, a, b, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	s.log.Debug().Int64("conversation_id", conv.ID).Int64("user_a", conv.UserA).Int64("user_b", conv.UserB).Msg("conversation created")
	return conv, nil
}

// SendMessage stores a message and pushes it to the other participant.
func (s *Service) SendMessage(ctx context.Context, conversationID int64, text string, senderID int64) (*store.Message, error) {
	body, err := s.validateText(text)
	if err != nil {
		return nil, err
	}
	conv, err := s.participantConversation(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}

	msg := &store.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Body:           body,
		CreatedAt:      s.clock.Now().UTC(),
	}
	if err := s.store.AppendMessage(ctx, msg, Preview(body)); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	s.push.ToUser(conv.Other(senderID), proto.NewAt(proto.TypeNewMessage, NewMessageView(msg), msg.CreatedAt))
	return msg, nil
}

// GetMessages returns a newest-first page. page is zero-based.
func (s *Service) GetMessages(ctx context.Context, conversationID int64, page, size int, requesterID int64) ([]*store.Message, error) {
	if _, err := s.participantConversation(ctx, conversationID, requesterID); err != nil {
		return nil, err
	}
	size = ClampPageSize(size)
	page = max(page, 0)

	msgs, err := s.store.ListMessages(ctx, conversationID, size, page*size)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// MarkMessageAsRead marks one message read by its recipient. Repeating the
// call is a no-op; the sender gets a receipt only for the first transition.
func (s *Service) MarkMessageAsRead(ctx context.Context, messageID, readerID int64) error {
	msg, conv, err := s.messageWithConversation(ctx, messageID, readerID)
	if err != nil {
		return err
	}
	if msg.SenderID == readerID {
		return core.Forbidden(core.ErrCodeNotRecipient, "only the recipient can mark a message as read")
	}

	now := s.clock.Now().UTC()
	changed, err := s.store.MarkMessageRead(ctx, messageID, readerID, now)
	if err != nil {
		return translate(err, "message")
	}
	if !changed {
		return nil
	}

	s.push.ToUser(msg.SenderID, proto.NewAt(proto.TypeMessageRead, ReadReceipt{
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		ReaderID:       readerID,
		ReadAt:         now,
	}, now))
	return nil
}

// MarkAllAsRead marks every message addressed to reader as read and resets
// the reader's unread counter. It returns the number of messages changed.
func (s *Service) MarkAllAsRead(ctx context.Context, conversationID, readerID int64) (int, error) {
	conv, err := s.participantConversation(ctx, conversationID, readerID)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now().UTC()
	ids, err := s.store.MarkConversationRead(ctx, conversationID, readerID, now)
	if err != nil {
		return 0, translate(err, "conversation")
	}
	if len(ids) == 0 {
		return 0, nil
	}

	s.push.ToUser(conv.Other(readerID), proto.NewAt(proto.TypeMessagesRead, BulkReadReceipt{
		ConversationID: conv.ID,
		ReaderID:       readerID,
		MessageIDs:     ids,
		ReadAt:         now,
	}, now))
	return len(ids), nil
}

// DeleteMessage soft-deletes a message. Only its sender may do so.
func (s *Service) DeleteMessage(ctx context.Context, messageID, requesterID int64) error {
	msg, conv, err := s.messageWithConversation(ctx, messageID, requesterID)
	if err != nil {
		return err
	}
	if msg.SenderID != requesterID {
		return core.Forbidden(core.ErrCodeNotSender, "only the sender can delete a message")
	}
	if msg.Deleted {
		return nil
	}

	if err := s.store.SoftDeleteMessage(ctx, messageID); err != nil {
		return translate(err, "message")
	}

	s.push.ToUser(conv.Other(requesterID), proto.New(proto.TypeMessageDeleted, MessageDeleted{
		ConversationID: conv.ID,
		MessageID:      msg.ID,
	}))
	return nil
}

// EditMessage replaces a message body. Only its sender may do so.
func (s *Service) EditMessage(ctx context.Context, messageID int64, text string, requesterID int64) (*store.Message, error) {
	body, err := s.validateText(text)
	if err != nil {
		return nil, err
	}
	msg, conv, err := s.messageWithConversation(ctx, messageID, requesterID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != requesterID {
		return nil, core.Forbidden(core.ErrCodeNotSender, "only the sender can edit a message")
	}
	if msg.Deleted {
		return nil, core.Validation(core.ErrCodeMessageDeleted, "deleted messages cannot be edited")
	}

	now := s.clock.Now().UTC()
	if err := s.store.EditMessage(ctx, messageID, body, now); err != nil {
		return nil, translate(err, "message")
	}
	msg.Body = body
	msg.Edited = true
	msg.EditedAt = &now

	s.push.ToUser(conv.Other(requesterID), proto.NewAt(proto.TypeMessageEdited, NewMessageView(msg), now))
	return msg, nil
}

// DeleteConversation hides a conversation from listings. Its history stays
// reachable by id.
func (s *Service) DeleteConversation(ctx context.Context, conversationID, requesterID int64) error {
	if _, err := s.participantConversation(ctx, conversationID, requesterID); err != nil {
		return err
	}
	if err := s.store.SoftDeleteConversation(ctx, conversationID); err != nil {
		return translate(err, "conversation")
	}
	return nil
}

// GetConversation returns a conversation to one of its participants,
// including soft-deleted ones.
func (s *Service) GetConversation(ctx context.Context, conversationID, requesterID int64) (*ConversationView, error) {
	conv, err := s.participantConversation(ctx, conversationID, requesterID)
	if err != nil {
		return nil, err
	}
	view, err := s.viewFor(ctx, conv, requesterID)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// ListConversations returns the user's active conversations, most recent first.
func (s *Service) ListConversations(ctx context.Context, userID int64) ([]ConversationView, error) {
	convs, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	views := make([]ConversationView, 0, len(convs))
	for _, conv := range convs {
		view, err := s.viewFor(ctx, conv, userID)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// UnreadCount sums the user's unread counters across active conversations.
func (s *Service) UnreadCount(ctx context.Context, userID int64) (int, error) {
	n, err := s.store.UnreadTotal(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("unread total: %w", err)
	}
	return n, nil
}

// SearchUsers finds accounts to start a conversation with, excluding the requester.
func (s *Service) SearchUsers(ctx context.Context, query string, requesterID int64) ([]UserView, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []UserView{}, nil
	}

	accounts, err := s.store.SearchAccounts(ctx, query, SearchLimit+1)
	if err != nil {
		return nil, fmt.Errorf("search accounts: %w", err)
	}
	accounts = lo.Filter(accounts, func(acc *store.Account, _ int) bool {
		return acc.ID != requesterID
	})
	if len(accounts) > SearchLimit {
		accounts = accounts[:SearchLimit]
	}
	return lo.Map(accounts, func(acc *store.Account, _ int) UserView {
		return NewUserView(acc)
	}), nil
}

func (s *Service) viewFor(ctx context.Context, conv *store.Conversation, userID int64) (ConversationView, error) {
	other, err := s.store.GetAccountByID(ctx, conv.Other(userID))
	if err != nil {
		return ConversationView{}, translate(err, "user")
	}
	return ConversationView{
		ID:          conv.ID,
		Other:       NewUserView(other),
		LastMessage: conv.LastMessage,
		UnreadCount: conv.UnreadFor(userID),
		Deleted:     conv.Deleted,
		UpdatedAt:   conv.UpdatedAt,
	}, nil
}

func (s *Service) participantConversation(ctx context.Context, conversationID, userID int64) (*store.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, translate(err, "conversation")
	}
	if !conv.HasParticipant(userID) {
		return nil, core.Forbidden(core.ErrCodeNotParticipant, "not a participant of this conversation")
	}
	return conv, nil
}

func (s *Service) messageWithConversation(ctx context.Context, messageID, userID int64) (*store.Message, *store.Conversation, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, nil, translate(err, "message")
	}
	conv, err := s.participantConversation(ctx, msg.ConversationID, userID)
	if err != nil {
		return nil, nil, err
	}
	return msg, conv, nil
}

func (s *Service) validateText(text string) (string, error) {
	body := strings.TrimSpace(text)
	if body == "" {
		return "", core.Validation(core.ErrCodeEmptyMessage, "message text is empty")
	}
	if utf8.RuneCountInString(body) > s.maxLen {
		return "", core.Validation(core.ErrCodeMessageTooLong, fmt.Sprintf("message exceeds %d characters", s.maxLen))
	}
	return body, nil
}

// Preview truncates body to PreviewLength runes, marking the cut with an ellipsis.
func Preview(body string) string {
	if utf8.RuneCountInString(body) <= PreviewLength {
		return body
	}
	runes := []rune(body)
	return string(runes[:PreviewLength]) + "…"
}

// ClampPageSize bounds a requested page size to 1..MaxPageSize. Zero or
// negative sizes fall back to DefaultPageSize.
func ClampPageSize(size int) int {
	if size <= 0 {
		return DefaultPageSize
	}
	return min(size, MaxPageSize)
}

func translate(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return core.NotFound(core.ErrCodeNotFound, what+" not found")
	}
	return fmt.Errorf("%s: %w", what, err)
}
