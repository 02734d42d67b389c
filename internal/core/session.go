package core

import (
	"errors"
	"time"
)

// ErrSessionClosed is returned by Send once the transport has gone away.
var ErrSessionClosed = errors.New("session closed")

// ErrSessionBackpressure is returned by Send when the outbound buffer is full.
var ErrSessionBackpressure = errors.New("session outbound buffer full")

// SessionInfo is observability metadata about a live session. It lives only
// as long as the session is registered.
type SessionInfo struct {
	SessionID   string    `json:"session_id"`
	Channel     string    `json:"channel"`
	Principal   string    `json:"principal"`
	ConnectedAt time.Time `json:"connected_at"`
	RemoteAddr  string    `json:"remote_addr"`
	UserAgent   string    `json:"user_agent"`
}

// Session is one live transport connection. Send must not block.
type Session interface {
	ID() string
	Principal() *Principal
	Info() SessionInfo
	Send(payload []byte) error
}
