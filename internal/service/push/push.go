// Package push routes domain events addressed to account ids onto the
// dispatcher, which knows sessions only by principal name.
package push

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/agora-server/internal/core"
	"github.com/vovakirdan/agora-server/internal/proto"
	"github.com/vovakirdan/agora-server/internal/store"
)

// Pusher delivers envelopes to users by account id.
type Pusher struct {
	accounts   store.AccountStore
	dispatcher *core.Dispatcher
	log        *zerolog.Logger
}

// New creates a pusher.
func New(accounts store.AccountStore, dispatcher *core.Dispatcher, logger *zerolog.Logger) *Pusher {
	return &Pusher{
		accounts:   accounts,
		dispatcher: dispatcher,
		log:        logger,
	}
}

// ToUser hands env to the dispatcher queue for userID. It never blocks on
// the account lookup or on socket writes.
func (p *Pusher) ToUser(userID int64, env proto.Envelope) {
	p.dispatcher.Submit(func(ctx context.Context) {
		p.deliver(ctx, userID, env)
	})
}

// ToAdmins broadcasts env to administrator sessions.
func (p *Pusher) ToAdmins(env proto.Envelope) {
	p.dispatcher.BroadcastToAdmins(env)
}

func (p *Pusher) deliver(ctx context.Context, userID int64, env proto.Envelope) {
	acc, err := p.accounts.GetAccountByID(ctx, userID)
	if err != nil {
		p.log.Debug().Err(err).Int64("user_id", userID).Str("type", env.Type).Msg("push target not resolvable")
		return
	}
	p.dispatcher.DeliverTo(core.RoutingName(acc.Email, acc.Username), env)
}
