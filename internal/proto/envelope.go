package proto

import (
	"encoding/json"
	"time"
)

// Envelope is the wire frame used in both directions.
type Envelope struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Inbound is an envelope as decoded from a client, with data left raw
// until the channel knows which variant to build.
type Inbound struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
}

// Server to client types.
const (
	TypeWelcome = "welcome"
	TypePong    = "pong"
	TypeError   = "error"

	TypeRecentActivities = "recent_activities"
	TypeStatistics       = "statistics"
	TypeNewActivity      = "new_activity"
	TypeStatsUpdate      = "stats_update"
	TypeSystemMessage    = "system_message"

	TypeNewMessage     = "new_message"
	TypeMessageRead    = "message_read"
	TypeMessagesRead   = "messages_read"
	TypeMessageEdited  = "message_edited"
	TypeMessageDeleted = "message_deleted"
	TypeTyping         = "typing"
	TypeNotification   = "notification"
)

// Client to server types.
const (
	TypePing      = "ping"
	TypeGetRecent = "get_recent"
	TypeGetStats  = "get_stats"
	TypeRead      = "read"
)

// New stamps an envelope with the current UTC time.
func New(typ string, data any) Envelope {
	return NewAt(typ, data, time.Now())
}

// NewAt builds an envelope with an explicit timestamp.
func NewAt(typ string, data any, ts time.Time) Envelope {
	return Envelope{Type: typ, Data: data, Timestamp: ts.UTC()}
}

// ErrorData is the payload of an error envelope.
type ErrorData struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Errorf builds an error envelope.
func Errorf(code, message string) Envelope {
	return New(TypeError, ErrorData{Code: code, Message: message})
}

// WelcomeData greets a freshly registered session.
type WelcomeData struct {
	Channel   string    `json:"channel"`
	Principal string    `json:"principal"`
	SessionID string    `json:"session_id"`
	Message   string    `json:"message"`
	ServerNow time.Time `json:"server_time"`
}

// PongData answers a ping.
type PongData struct {
	ServerTime time.Time `json:"server_time"`
}
