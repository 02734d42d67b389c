// Package activity keeps the admin activity feed and the live statistics
// pushed to administrator sessions.
package activity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/agora-server/internal/core"
	"github.com/vovakirdan/agora-server/internal/proto"
	"github.com/vovakirdan/agora-server/internal/store"
)

// Activity kinds recorded by the delivery core itself.
const (
	KindSystemMessage = "system_message"
	KindCleanup       = "notification_cleanup"
)

// Broadcaster pushes envelopes to administrator sessions.
type Broadcaster interface {
	BroadcastToAdmins(env proto.Envelope)
}

// SessionCounter reports live session counts.
type SessionCounter interface {
	Count() int
	CountWhere(pred func(*core.Principal) bool) int
}

// View is the wire form of an activity.
type View struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	ActorID   *int64    `json:"actor_id,omitempty"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats are the aggregate counters shown on the admin dashboard.
type Stats struct {
	ActivitiesTotal   int `json:"activities_total"`
	ActivitiesLast24h int `json:"activities_last_24h"`
	SessionsActive    int `json:"sessions_active"`
	UsersOnline       int `json:"users_online"`
	AdminsOnline      int `json:"admins_online"`
}

// SystemMessage is the payload of a system_message envelope.
type SystemMessage struct {
	From string `json:"from"`
	Text string `json:"text"`
}

// Service records activities and computes statistics.
type Service struct {
	store    store.ActivityStore
	sessions SessionCounter
	bcast    Broadcaster
	clock    clock.Clock
	log      *zerolog.Logger
}

// NewService creates an activity service.
func NewService(st store.ActivityStore, sessions SessionCounter, bcast Broadcaster, clk clock.Clock, logger *zerolog.Logger) *Service {
	return &Service{
		store:    st,
		sessions: sessions,
		bcast:    bcast,
		clock:    clk,
		log:      logger,
	}
}

// Record persists an activity and broadcasts it to administrators.
func (s *Service) Record(ctx context.Context, kind string, actorID *int64, summary string) error {
	a := &store.Activity{
		Kind:      kind,
		ActorID:   actorID,
		Summary:   summary,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.store.CreateActivity(ctx, a); err != nil {
		return fmt.Errorf("create activity: %w", err)
	}
	s.bcast.BroadcastToAdmins(proto.NewAt(proto.TypeNewActivity, newView(a), a.CreatedAt))
	return nil
}

// Recent returns the newest activities, applying the get_recent bounds.
func (s *Service) Recent(ctx context.Context, limit int) ([]View, error) {
	activities, err := s.store.ListRecentActivities(ctx, proto.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return lo.Map(activities, func(a *store.Activity, _ int) View {
		return newView(a)
	}), nil
}

// Stats computes the dashboard counters.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	total, err := s.store.CountActivities(ctx, time.Time{})
	if err != nil {
		return Stats{}, fmt.Errorf("count activities: %w", err)
	}
	recent, err := s.store.CountActivities(ctx, s.clock.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		return Stats{}, fmt.Errorf("count recent activities: %w", err)
	}
	return Stats{
		ActivitiesTotal:   total,
		ActivitiesLast24h: recent,
		SessionsActive:    s.sessions.Count(),
		UsersOnline: s.sessions.CountWhere(func(p *core.Principal) bool {
			return !p.Anonymous
		}),
		AdminsOnline: s.sessions.CountWhere((*core.Principal).IsAdmin),
	}, nil
}

// PublishStats broadcasts a stats_update to administrators.
func (s *Service) PublishStats(ctx context.Context) error {
	stats, err := s.Stats(ctx)
	if err != nil {
		return err
	}
	s.bcast.BroadcastToAdmins(proto.NewAt(proto.TypeStatsUpdate, stats, s.clock.Now()))
	return nil
}

// BroadcastSystemMessage relays an administrator's message to every admin session.
func (s *Service) BroadcastSystemMessage(ctx context.Context, sender *core.Principal, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return core.Validation(core.ErrCodeEmptyMessage, "system message is empty")
	}
	if !sender.IsAdmin() {
		return core.Forbidden(core.ErrCodeForbidden, "only administrators can post system messages")
	}

	s.bcast.BroadcastToAdmins(proto.NewAt(proto.TypeSystemMessage, SystemMessage{From: sender.Name, Text: text}, s.clock.Now()))

	actorID := sender.UserID
	return s.Record(ctx, KindSystemMessage, &actorID, fmt.Sprintf("%s: %s", sender.Name, text))
}

func newView(a *store.Activity) View {
	return View{
		ID:        a.ID,
		Kind:      a.Kind,
		ActorID:   a.ActorID,
		Summary:   a.Summary,
		CreatedAt: a.CreatedAt,
	}
}
