package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/agora-server/internal/auth"
	"github.com/vovakirdan/agora-server/internal/core"
	"github.com/vovakirdan/agora-server/internal/proto"
)

// WSOptions tunes per-connection limits.
type WSOptions struct {
	MaxMessageBytes int64
	RateLimit       int
	SessionBuffer   int
}

// WSHandler upgrades HTTP connections for one channel and bridges them to the registry.
type WSHandler struct {
	channel  Channel
	authn    *auth.Authenticator
	registry *core.Registry
	opts     WSOptions
	log      *zerolog.Logger
	// active counts running handlers so Server.Shutdown can wait for them.
	active   *sync.WaitGroup
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(channel Channel, authn *auth.Authenticator, registry *core.Registry, opts WSOptions, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		channel:  channel,
		authn:    authn,
		registry: registry,
		opts:     opts,
		log:      logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	if h.active != nil {
		h.active.Add(1)
		defer h.active.Done()
	}
	ctx := r.Context()

	principal, err := h.authn.Authenticate(ctx, auth.CaptureHandshake(r))
	if err != nil {
		h.log.Debug().Err(err).Str("channel", h.channel.Name()).Msg("connecting anonymously")
		principal = core.AnonymousPrincipal()
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.opts.MaxMessageBytes)
	}

	if permitErr := h.channel.Permit(principal); permitErr != nil {
		h.log.Info().
			Str("channel", h.channel.Name()).
			Str("principal", principal.Name).
			Str("reason", permitErr.Error()).
			Msg("ws connection rejected")
		conn.Close(websocket.StatusPolicyViolation, "access denied: "+permitErr.Error())
		return
	}

	sess := newWSSession(h.channel.Name(), principal, r.RemoteAddr, r.UserAgent(), h.opts.SessionBuffer)
	h.registry.Register(principal.Name, sess)
	defer func() {
		sess.close()
		h.registry.Unregister(sess)
	}()

	h.log.Info().
		Str("channel", h.channel.Name()).
		Str("principal", principal.Name).
		Str("session_id", sess.ID()).
		Msg("ws session opened")
	h.send(sess, h.channel.Welcome(sess.Info()))

	// Cancelling a Read tears the connection down without a close frame, so
	// server shutdown is turned into a close handshake instead.
	stopShutdownWatch := context.AfterFunc(ctx, func() {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	})
	defer stopShutdownWatch()

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	limiter := newRateLimiter(h.opts.RateLimit)
	limiter.startReset(ctx.Done())

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, sess, limiter)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, sess)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status, reason := closeFrame(err)
	switch {
	case websocket.CloseStatus(err) != -1:
		h.log.Info().Str("session_id", sess.ID()).Int("status", int(websocket.CloseStatus(err))).Msg("ws closed by peer")
	case status != websocket.StatusNormalClosure:
		h.log.Warn().Err(err).Str("session_id", sess.ID()).Int("status", int(status)).Msg("ws connection closed with error")
	}

	conn.Close(status, reason)
}

// maxCloseReason is the longest reason a close frame can carry.
const maxCloseReason = 123

// closeFrame picks the status and reason sent to the peer when a session ends.
func closeFrame(err error) (websocket.StatusCode, string) {
	switch {
	case err == nil, errors.Is(err, io.EOF), errors.Is(err, context.Canceled):
		return websocket.StatusNormalClosure, "closing"
	case errors.Is(err, core.ErrSessionBackpressure):
		return websocket.StatusTryAgainLater, "send buffer full"
	case websocket.CloseStatus(err) != -1:
		// the peer started the handshake; the library answers it
		return websocket.StatusNormalClosure, "closing"
	}
	reason := err.Error()
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}
	return websocket.StatusInternalError, reason
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *wsSession, limiter *rateLimiter) error {
	decoder := h.channel.Decoder()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		if !limiter.allow() {
			h.send(sess, proto.Errorf(core.ErrCodeRateLimited, "too many messages"))
			continue
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			h.send(sess, proto.Errorf(core.ErrCodeBadRequest, "malformed message"))
			continue
		}

		req, err := decoder.Decode(inbound)
		if err != nil {
			h.send(sess, proto.Errorf(core.ErrCodeBadRequest, err.Error()))
			continue
		}

		reply, err := h.channel.Handle(ctx, sess, req)
		if err != nil {
			h.log.Debug().Err(err).Str("session_id", sess.ID()).Str("type", inbound.Type).Msg("ws request rejected")
			h.send(sess, errorEnvelope(err))
			continue
		}
		if reply != nil {
			h.send(sess, *reply)
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sess *wsSession) error {
	for {
		select {
		case payload := <-sess.out:
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				h.log.Error().Err(err).Str("session_id", sess.ID()).Msg("write ws frame")
				return err
			}
		case <-sess.done:
			return core.ErrSessionBackpressure
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// send delivers a reply through the same buffer pushes use.
func (h *WSHandler) send(sess *wsSession, env proto.Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		h.log.Error().Err(err).Str("type", env.Type).Msg("marshal envelope")
		return
	}
	if err := sess.Send(payload); err != nil {
		h.log.Debug().Err(err).Str("session_id", sess.ID()).Msg("reply dropped")
	}
}
