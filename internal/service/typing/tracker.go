// Package typing tracks short-lived "user is typing" presence per conversation.
package typing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/agora-server/internal/core"
	"github.com/vovakirdan/agora-server/internal/proto"
	"github.com/vovakirdan/agora-server/internal/store"
)

// DefaultTTL is how long a typing signal stays valid without renewal.
const DefaultTTL = 3 * time.Second

// Pusher delivers envelopes to users by account id without blocking.
type Pusher interface {
	ToUser(userID int64, env proto.Envelope)
}

// Conversations resolves the participants of a conversation.
type Conversations interface {
	GetConversation(ctx context.Context, id int64) (*store.Conversation, error)
}

// Status is the payload of a typing envelope.
type Status struct {
	ConversationID int64 `json:"conversation_id"`
	UserID         int64 `json:"user_id"`
	Typing         bool  `json:"typing"`
}

type key struct {
	conversationID int64
	userID         int64
}

type entry struct {
	at    time.Time
	other int64
	timer *clock.Timer
}

// Tracker owns the typing map. Each key carries one pending expiry timer
// that is replaced on every renewal.
type Tracker struct {
	convs   Conversations
	push    Pusher
	clock   clock.Clock
	ttl     time.Duration
	entries *xsync.MapOf[key, entry]
	log     *zerolog.Logger
}

// NewTracker creates a tracker. A non-positive ttl uses DefaultTTL.
func NewTracker(convs Conversations, pusher Pusher, clk clock.Clock, ttl time.Duration, logger *zerolog.Logger) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{
		convs:   convs,
		push:    pusher,
		clock:   clk,
		ttl:     ttl,
		entries: xsync.NewMapOf[key, entry](),
		log:     logger,
	}
}

// SetTyping records or clears userID's typing state and tells the other participant.
func (t *Tracker) SetTyping(ctx context.Context, conversationID, userID int64, typing bool) error {
	conv, err := t.convs.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return core.NotFound(core.ErrCodeNotFound, "conversation not found")
		}
		return fmt.Errorf("get conversation: %w", err)
	}
	if !conv.HasParticipant(userID) {
		return core.Forbidden(core.ErrCodeNotParticipant, "not a participant of this conversation")
	}

	k := key{conversationID: conversationID, userID: userID}
	other := conv.Other(userID)

	if !typing {
		t.clear(k)
		t.notify(other, k, false)
		return nil
	}

	now := t.clock.Now()
	t.entries.Compute(k, func(old entry, loaded bool) (entry, bool) {
		if loaded && old.timer != nil {
			old.timer.Stop()
		}
		return entry{
			at:    now,
			other: other,
			timer: t.clock.AfterFunc(t.ttl, func() { t.expire(k, now) }),
		}, false
	})
	t.notify(other, k, true)
	return nil
}

// IsTyping reports whether userID signalled typing within the TTL.
// Stale entries are removed on read.
func (t *Tracker) IsTyping(conversationID, userID int64) bool {
	k := key{conversationID: conversationID, userID: userID}
	e, ok := t.entries.Load(k)
	if !ok {
		return false
	}
	if t.clock.Since(e.at) < t.ttl {
		return true
	}
	t.removeIfStale(k, e.at)
	return false
}

// Len returns the number of tracked keys.
func (t *Tracker) Len() int {
	return t.entries.Size()
}

// Close stops every pending expiry timer.
func (t *Tracker) Close() {
	t.entries.Range(func(k key, e entry) bool {
		if e.timer != nil {
			e.timer.Stop()
		}
		t.entries.Delete(k)
		return true
	})
}

func (t *Tracker) clear(k key) {
	if e, ok := t.entries.LoadAndDelete(k); ok && e.timer != nil {
		e.timer.Stop()
	}
}

// expire fires from the timer armed at `at`. A renewal since then has
// replaced the entry, in which case nothing happens.
func (t *Tracker) expire(k key, at time.Time) {
	if other, removed := t.removeIfStale(k, at); removed {
		t.log.Debug().Int64("conversation_id", k.conversationID).Int64("user_id", k.userID).Msg("typing expired")
		t.notify(other, k, false)
	}
}

func (t *Tracker) removeIfStale(k key, at time.Time) (int64, bool) {
	var other int64
	removed := false
	t.entries.Compute(k, func(old entry, loaded bool) (entry, bool) {
		if !loaded {
			return old, true
		}
		if !old.at.Equal(at) {
			return old, false
		}
		if old.timer != nil {
			old.timer.Stop()
		}
		other = old.other
		removed = true
		return old, true
	})
	return other, removed
}

func (t *Tracker) notify(recipient int64, k key, typing bool) {
	t.push.ToUser(recipient, proto.New(proto.TypeTyping, Status{
		ConversationID: k.conversationID,
		UserID:         k.userID,
		Typing:         typing,
	}))
}
