package proto

import (
	"encoding/json"
	"fmt"
)

// Request is a decoded client frame. Exactly one concrete variant is produced
// per known type; anything else becomes UnknownRequest.
type Request interface {
	requestType() string
}

// PingRequest asks for a pong.
type PingRequest struct{}

// GetRecentRequest asks the admin channel for recent activity records.
type GetRecentRequest struct {
	Limit int `json:"limit"`
}

// GetStatsRequest asks the admin channel for aggregate counters.
type GetStatsRequest struct{}

// TypingRequest reports composing state in a conversation.
type TypingRequest struct {
	ConversationID int64 `json:"conversation_id"`
	Typing         bool  `json:"typing"`
}

// ReadRequest marks a whole conversation as read.
type ReadRequest struct {
	ConversationID int64 `json:"conversation_id"`
}

// UnknownRequest carries a type string no decoder recognised.
type UnknownRequest struct {
	Type string
}

func (PingRequest) requestType() string      { return TypePing }
func (GetRecentRequest) requestType() string { return TypeGetRecent }
func (GetStatsRequest) requestType() string  { return TypeGetStats }
func (TypingRequest) requestType() string    { return TypeTyping }
func (ReadRequest) requestType() string      { return TypeRead }
func (u UnknownRequest) requestType() string { return u.Type }

const (
	DefaultRecentLimit = 50
	MaxRecentLimit     = 200
)

// Decoder maps known type strings to payload constructors.
type Decoder map[string]func(json.RawMessage) (Request, error)

// AdminDecoder understands the admin activity channel.
var AdminDecoder = Decoder{
	TypePing:     decodeEmpty(PingRequest{}),
	TypeGetStats: decodeEmpty(GetStatsRequest{}),
	TypeGetRecent: func(raw json.RawMessage) (Request, error) {
		req := GetRecentRequest{Limit: DefaultRecentLimit}
		if err := unmarshalOptional(raw, &req); err != nil {
			return nil, err
		}
		req.Limit = ClampLimit(req.Limit)
		return req, nil
	},
}

// MessengerDecoder understands the messenger channel.
var MessengerDecoder = Decoder{
	TypePing: decodeEmpty(PingRequest{}),
	TypeTyping: func(raw json.RawMessage) (Request, error) {
		var req TypingRequest
		if err := unmarshalOptional(raw, &req); err != nil {
			return nil, err
		}
		if req.ConversationID <= 0 {
			return nil, fmt.Errorf("conversation_id is required")
		}
		return req, nil
	},
	TypeRead: func(raw json.RawMessage) (Request, error) {
		var req ReadRequest
		if err := unmarshalOptional(raw, &req); err != nil {
			return nil, err
		}
		if req.ConversationID <= 0 {
			return nil, fmt.Errorf("conversation_id is required")
		}
		return req, nil
	},
}

// Decode turns an inbound frame into a request variant. An unrecognised type
// is not an error; malformed data for a known type is.
func (d Decoder) Decode(in Inbound) (Request, error) {
	fn, ok := d[in.Type]
	if !ok {
		return UnknownRequest{Type: in.Type}, nil
	}
	req, err := fn(in.Data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", in.Type, err)
	}
	return req, nil
}

// ClampLimit applies the get_recent default and upper bound.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		return MaxRecentLimit
	}
	return limit
}

func decodeEmpty(v Request) func(json.RawMessage) (Request, error) {
	return func(json.RawMessage) (Request, error) { return v, nil }
}

func unmarshalOptional(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
