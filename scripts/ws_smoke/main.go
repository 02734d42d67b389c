package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/agora-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws/messenger", "WebSocket address")
	token := flag.String("token", "", "access token (from POST /api/login)")
	conversation := flag.Int64("conversation", 0, "conversation id to send a typing signal to (0 skips)")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	target, err := url.Parse(*addr)
	if err != nil {
		return fmt.Errorf("parse addr: %w", err)
	}
	if *token != "" {
		q := target.Query()
		q.Set("access_token", *token)
		target.RawQuery = q.Encode()
	}

	conn, _, err := websocket.Dial(ctx, target.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	mustSend := func(typ string, v any) error {
		var raw json.RawMessage
		if v != nil {
			b, marshalErr := json.Marshal(v)
			if marshalErr != nil {
				return fmt.Errorf("marshal %s: %w", typ, marshalErr)
			}
			raw = b
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: raw}); err != nil {
			return fmt.Errorf("send %s: %w", typ, err)
		}
		return nil
	}

	if err := mustSend(proto.TypePing, nil); err != nil {
		return err
	}
	if *conversation > 0 {
		if err := mustSend(proto.TypeTyping, proto.TypingRequest{ConversationID: *conversation, Typing: true}); err != nil {
			return err
		}
	}

	for {
		var env struct {
			Type      string          `json:"type"`
			Data      json.RawMessage `json:"data"`
			Timestamp time.Time       `json:"timestamp"`
		}
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				return fmt.Errorf("closed by server: %d", status)
			}
			return fmt.Errorf("read: %w", err)
		}

		fmt.Printf("Received: type=%s ts=%s data=%s\n", env.Type, env.Timestamp.Format(time.RFC3339), env.Data)

		switch env.Type {
		case proto.TypeError:
			var e proto.ErrorData
			if err := json.Unmarshal(env.Data, &e); err == nil {
				fmt.Printf("Error: code=%s message=%s\n", e.Code, e.Message)
			}
		case proto.TypePong:
			return nil
		default:
			// keep looping for pong
		}
	}
}
