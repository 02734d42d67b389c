package http

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vovakirdan/agora-server/internal/core"
	"github.com/vovakirdan/agora-server/internal/proto"
	"github.com/vovakirdan/agora-server/internal/service/activity"
	"github.com/vovakirdan/agora-server/internal/service/messaging"
	"github.com/vovakirdan/agora-server/internal/service/typing"
)

// Channel is one websocket endpoint: who may connect and what they may say.
type Channel interface {
	Name() string
	Permit(p *core.Principal) error
	Welcome(info core.SessionInfo) proto.Envelope
	Decoder() proto.Decoder
	// Handle answers one decoded request. A nil envelope means no reply.
	Handle(ctx context.Context, s core.Session, req proto.Request) (*proto.Envelope, error)
}

var (
	errAdminOnly     = errors.New("admin-only channel")
	errAuthenticated = errors.New("authentication required")
)

func welcome(channel, message string, info core.SessionInfo) proto.Envelope {
	return proto.New(proto.TypeWelcome, proto.WelcomeData{
		Channel:   channel,
		Principal: info.Principal,
		SessionID: info.SessionID,
		Message:   message,
		ServerNow: time.Now().UTC(),
	})
}

func pong() *proto.Envelope {
	env := proto.New(proto.TypePong, proto.PongData{ServerTime: time.Now().UTC()})
	return &env
}

func unknownType(typ string) error {
	return core.Validation(core.ErrCodeUnknownType, fmt.Sprintf("unknown message type: %q", typ))
}

// AdminChannel streams the activity feed to administrators.
type AdminChannel struct {
	activity *activity.Service
}

// NewAdminChannel creates the admin activity channel.
func NewAdminChannel(svc *activity.Service) *AdminChannel {
	return &AdminChannel{activity: svc}
}

func (a *AdminChannel) Name() string { return "admin" }

func (a *AdminChannel) Permit(p *core.Principal) error {
	if p == nil || p.Anonymous || !p.IsAdmin() {
		return errAdminOnly
	}
	return nil
}

func (a *AdminChannel) Welcome(info core.SessionInfo) proto.Envelope {
	return welcome(a.Name(), "connected to admin activity feed", info)
}

func (a *AdminChannel) Decoder() proto.Decoder { return proto.AdminDecoder }

func (a *AdminChannel) Handle(ctx context.Context, _ core.Session, req proto.Request) (*proto.Envelope, error) {
	switch r := req.(type) {
	case proto.PingRequest:
		return pong(), nil
	case proto.GetRecentRequest:
		views, err := a.activity.Recent(ctx, r.Limit)
		if err != nil {
			return nil, err
		}
		env := proto.New(proto.TypeRecentActivities, views)
		return &env, nil
	case proto.GetStatsRequest:
		stats, err := a.activity.Stats(ctx)
		if err != nil {
			return nil, err
		}
		env := proto.New(proto.TypeStatistics, stats)
		return &env, nil
	case proto.UnknownRequest:
		return nil, unknownType(r.Type)
	default:
		return nil, unknownType(fmt.Sprintf("%T", req))
	}
}

// MessengerChannel carries private-messaging pushes and client signals.
type MessengerChannel struct {
	messaging *messaging.Service
	typing    *typing.Tracker
}

// NewMessengerChannel creates the messenger channel.
func NewMessengerChannel(msg *messaging.Service, tracker *typing.Tracker) *MessengerChannel {
	return &MessengerChannel{messaging: msg, typing: tracker}
}

func (m *MessengerChannel) Name() string { return "messenger" }

func (m *MessengerChannel) Permit(p *core.Principal) error {
	if p == nil || p.Anonymous {
		return errAuthenticated
	}
	return nil
}

func (m *MessengerChannel) Welcome(info core.SessionInfo) proto.Envelope {
	return welcome(m.Name(), "connected to messenger", info)
}

func (m *MessengerChannel) Decoder() proto.Decoder { return proto.MessengerDecoder }

func (m *MessengerChannel) Handle(ctx context.Context, s core.Session, req proto.Request) (*proto.Envelope, error) {
	userID := s.Principal().UserID
	switch r := req.(type) {
	case proto.PingRequest:
		return pong(), nil
	case proto.TypingRequest:
		return nil, m.typing.SetTyping(ctx, r.ConversationID, userID, r.Typing)
	case proto.ReadRequest:
		_, err := m.messaging.MarkAllAsRead(ctx, r.ConversationID, userID)
		return nil, err
	case proto.UnknownRequest:
		return nil, unknownType(r.Type)
	default:
		return nil, unknownType(fmt.Sprintf("%T", req))
	}
}
