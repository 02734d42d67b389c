package http

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vovakirdan/agora-server/internal/core"
)

// wsSession is the core.Session of one websocket connection. Send only
// enqueues; the connection's write loop drains the buffer.
type wsSession struct {
	id        string
	principal *core.Principal
	info      core.SessionInfo
	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

var _ core.Session = (*wsSession)(nil)

func newWSSession(channel string, principal *core.Principal, remoteAddr, userAgent string, buffer int) *wsSession {
	if buffer <= 0 {
		buffer = 1
	}
	id := uuid.NewString()
	return &wsSession{
		id:        id,
		principal: principal,
		info: core.SessionInfo{
			SessionID:   id,
			Channel:     channel,
			Principal:   principal.Name,
			ConnectedAt: time.Now().UTC(),
			RemoteAddr:  remoteAddr,
			UserAgent:   userAgent,
		},
		out:  make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (s *wsSession) ID() string                 { return s.id }
func (s *wsSession) Principal() *core.Principal { return s.principal }
func (s *wsSession) Info() core.SessionInfo     { return s.info }

// Send queues payload for the write loop. A slow client whose buffer is
// full is closed rather than waited on.
func (s *wsSession) Send(payload []byte) error {
	select {
	case <-s.done:
		return core.ErrSessionClosed
	default:
	}
	select {
	case s.out <- payload:
		return nil
	case <-s.done:
		return core.ErrSessionClosed
	default:
		s.close()
		return core.ErrSessionBackpressure
	}
}

func (s *wsSession) close() {
	s.closeOnce.Do(func() { close(s.done) })
}
