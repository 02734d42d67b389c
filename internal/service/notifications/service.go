// Package notifications creates durable, deduplicated notifications and
// pushes them to their recipients.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/agora-server/internal/core"
	"github.com/vovakirdan/agora-server/internal/proto"
	"github.com/vovakirdan/agora-server/internal/store"
)

// Notification types.
const (
	TypeComment             = "COMMENT"
	TypeReply               = "REPLY"
	TypeLike                = "LIKE"
	TypeDislike             = "DISLIKE"
	TypeMention             = "MENTION"
	TypeNewFollower         = "NEW_FOLLOWER"
	TypeUnfollow            = "UNFOLLOW"
	TypeNewVote             = "NEW_VOTE"
	TypeEventEnded          = "EVENT_ENDED"
	TypePublicationApproved = "PUBLICATION_APPROVED"
	TypeSignalReviewed      = "SIGNAL_REVIEWED"
	TypeRoleChanged         = "ROLE_CHANGED"
	TypeSystem              = "SYSTEM"
)

// Priorities.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// ActivityKindCreated is recorded in the admin feed for every stored notification.
const ActivityKindCreated = "notification_created"

const (
	// DefaultDedupWindow suppresses identical notifications created this close together.
	DefaultDedupWindow = 5 * time.Minute
	// DefaultRetentionDays is how long notifications are kept.
	DefaultRetentionDays = 90
	// MaxPageSize bounds List pages.
	MaxPageSize = 100
)

// Pusher delivers envelopes to users by account id without blocking.
type Pusher interface {
	ToUser(userID int64, env proto.Envelope)
}

// ActivityRecorder receives admin feed entries.
type ActivityRecorder interface {
	Record(ctx context.Context, kind string, actorID *int64, summary string) error
}

// Store is the persistence the notification service needs.
type Store interface {
	store.AccountStore
	store.NotificationStore
	store.CommentStore
}

// Config tunes dedup and retention.
type Config struct {
	DedupWindow   time.Duration
	RetentionDays int
}

// CreateInput describes a notification to create.
type CreateInput struct {
	RecipientID int64   `validate:"required,gt=0"`
	Type        string  `validate:"required,oneof=COMMENT REPLY LIKE DISLIKE MENTION NEW_FOLLOWER UNFOLLOW NEW_VOTE EVENT_ENDED PUBLICATION_APPROVED SIGNAL_REVIEWED ROLE_CHANGED SYSTEM"`
	Text        string  `validate:"required,max=500"`
	ActorID     *int64  `validate:"omitempty,gt=0"`
	EntityType  *string `validate:"omitempty,entity_kind"`
	EntityID    *int64  `validate:"required_with=EntityType"`
	ActionURL   string  `validate:"max=500"`
	Priority    string  `validate:"omitempty,oneof=low normal high"`
}

// Service implements the notification domain.
type Service struct {
	store    Store
	resolver *URLResolver
	push     Pusher
	activity ActivityRecorder
	clock    clock.Clock
	cfg      Config
	log      *zerolog.Logger
}

// NewService creates a notification service. activity may be nil.
func NewService(st Store, pusher Pusher, activity ActivityRecorder, clk clock.Clock, cfg Config, logger *zerolog.Logger) *Service {
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultDedupWindow
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}
	return &Service{
		store:    st,
		resolver: NewURLResolver(st, logger),
		push:     pusher,
		activity: activity,
		clock:    clk,
		cfg:      cfg,
		log:      logger,
	}
}

// Resolver exposes the action URL resolver.
func (s *Service) Resolver() *URLResolver {
	return s.resolver
}

// Create validates, deduplicates, stores and pushes a notification. A
// duplicate inside the dedup window returns nil, nil.
func (s *Service) Create(ctx context.Context, in CreateInput) (*store.Notification, error) {
	if err := validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	if in.Priority == "" {
		in.Priority = PriorityNormal
	}
	if in.ActionURL == "" && in.EntityType != nil && in.EntityID != nil {
		in.ActionURL = s.resolver.Resolve(ctx, EntityKind(*in.EntityType), *in.EntityID)
	}

	now := s.clock.Now().UTC()
	key := store.DedupKey{
		RecipientID: in.RecipientID,
		Type:        in.Type,
		EntityType:  in.EntityType,
		EntityID:    in.EntityID,
		ActorID:     in.ActorID,
	}
	dup, err := s.store.NotificationExists(ctx, key, now.Add(-s.cfg.DedupWindow))
	if err != nil {
		return nil, fmt.Errorf("dedup check: %w", err)
	}
	if dup {
		s.log.Debug().
			Int64("recipient_id", in.RecipientID).
			Str("type", in.Type).
			Msg("duplicate notification suppressed")
		return nil, nil
	}

	n := &store.Notification{
		RecipientID: in.RecipientID,
		Type:        in.Type,
		Text:        in.Text,
		ActorID:     in.ActorID,
		EntityType:  in.EntityType,
		EntityID:    in.EntityID,
		ActionURL:   in.ActionURL,
		Priority:    in.Priority,
		CreatedAt:   now,
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	n.ActorAvatar = s.actorAvatar(ctx, n.ActorID)
	s.push.ToUser(n.RecipientID, proto.NewAt(proto.TypeNotification, NewView(n), now))

	if s.activity != nil {
		summary := fmt.Sprintf("%s notification #%d for user %d", n.Type, n.ID, n.RecipientID)
		if err := s.activity.Record(ctx, ActivityKindCreated, n.ActorID, summary); err != nil {
			s.log.Warn().Err(err).Int64("notification_id", n.ID).Msg("record activity")
		}
	}
	return n, nil
}

// List returns a zero-based, newest-first page of the recipient's notifications.
func (s *Service) List(ctx context.Context, recipientID int64, page, size int) ([]View, error) {
	size = min(max(size, 1), MaxPageSize)
	page = max(page, 0)
	ns, err := s.store.ListNotifications(ctx, recipientID, size, page*size)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return s.views(ctx, ns), nil
}

// Recent returns the recipient's n newest notifications.
func (s *Service) Recent(ctx context.Context, recipientID int64, n int) ([]View, error) {
	return s.List(ctx, recipientID, 0, n)
}

// UnreadCount counts the recipient's unread notifications.
func (s *Service) UnreadCount(ctx context.Context, recipientID int64) (int, error) {
	n, err := s.store.CountUnreadNotifications(ctx, recipientID)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

// MarkRead marks one of the requester's notifications read.
func (s *Service) MarkRead(ctx context.Context, id, requesterID int64) error {
	if _, err := s.owned(ctx, id, requesterID); err != nil {
		return err
	}
	if err := s.store.MarkNotificationRead(ctx, id); err != nil {
		return translate(err)
	}
	return nil
}

// MarkAllRead marks all of the requester's notifications read.
func (s *Service) MarkAllRead(ctx context.Context, recipientID int64) (int64, error) {
	n, err := s.store.MarkAllNotificationsRead(ctx, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return n, nil
}

// Delete removes one of the requester's notifications.
func (s *Service) Delete(ctx context.Context, id, requesterID int64) error {
	if _, err := s.owned(ctx, id, requesterID); err != nil {
		return err
	}
	if err := s.store.DeleteNotification(ctx, id); err != nil {
		return translate(err)
	}
	return nil
}

// DeleteAll removes every notification of the requester.
func (s *Service) DeleteAll(ctx context.Context, recipientID int64) (int64, error) {
	n, err := s.store.DeleteAllNotifications(ctx, recipientID)
	if err != nil {
		return 0, fmt.Errorf("delete all notifications: %w", err)
	}
	return n, nil
}

// Cleanup purges notifications older than the retention window.
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().UTC().AddDate(0, 0, -s.cfg.RetentionDays)
	n, err := s.store.PurgeNotificationsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	s.log.Info().Int64("purged", n).Time("cutoff", cutoff).Msg("notification cleanup finished")
	return n, nil
}

func (s *Service) owned(ctx context.Context, id, requesterID int64) (*store.Notification, error) {
	n, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	if n.RecipientID != requesterID {
		return nil, core.Forbidden(core.ErrCodeNotRecipient, "notification belongs to another user")
	}
	return n, nil
}

// actorAvatar reads the actor's current display image. Profile photos
// change, so this is never cached on the notification row.
func (s *Service) actorAvatar(ctx context.Context, actorID *int64) string {
	if actorID == nil {
		return ""
	}
	acc, err := s.store.GetAccountByID(ctx, *actorID)
	if err != nil {
		s.log.Debug().Err(err).Int64("actor_id", *actorID).Msg("actor avatar lookup failed")
		return ""
	}
	return acc.AvatarURL
}

func (s *Service) views(ctx context.Context, ns []*store.Notification) []View {
	actorIDs := lo.Uniq(lo.FilterMap(ns, func(n *store.Notification, _ int) (int64, bool) {
		if n.ActorID == nil {
			return 0, false
		}
		return *n.ActorID, true
	}))
	avatars := make(map[int64]string, len(actorIDs))
	for _, id := range actorIDs {
		avatars[id] = s.actorAvatar(ctx, &id)
	}

	return lo.Map(ns, func(n *store.Notification, _ int) View {
		if n.ActorID != nil {
			n.ActorAvatar = avatars[*n.ActorID]
		}
		return NewView(n)
	})
}

func translate(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return core.NotFound(core.ErrCodeNotFound, "notification not found")
	}
	return fmt.Errorf("notification: %w", err)
}

// View is the wire form of a notification.
type View struct {
	ID          int64     `json:"id"`
	Type        string    `json:"type"`
	Text        string    `json:"text"`
	ActorID     *int64    `json:"actor_id,omitempty"`
	ActorAvatar string    `json:"actor_avatar,omitempty"`
	EntityType  *string   `json:"entity_type,omitempty"`
	EntityID    *int64    `json:"entity_id,omitempty"`
	ActionURL   string    `json:"action_url"`
	Priority    string    `json:"priority"`
	Read        bool      `json:"is_read"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewView maps a stored notification.
func NewView(n *store.Notification) View {
	return View{
		ID:          n.ID,
		Type:        n.Type,
		Text:        n.Text,
		ActorID:     n.ActorID,
		ActorAvatar: n.ActorAvatar,
		EntityType:  n.EntityType,
		EntityID:    n.EntityID,
		ActionURL:   n.ActionURL,
		Priority:    n.Priority,
		Read:        n.Read,
		CreatedAt:   n.CreatedAt,
	}
}
