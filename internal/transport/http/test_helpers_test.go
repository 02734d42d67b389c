package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/agora-server/internal/auth"
	"github.com/vovakirdan/agora-server/internal/config"
	"github.com/vovakirdan/agora-server/internal/core"
	logpkg "github.com/vovakirdan/agora-server/internal/log"
	"github.com/vovakirdan/agora-server/internal/proto"
	"github.com/vovakirdan/agora-server/internal/service/activity"
	"github.com/vovakirdan/agora-server/internal/service/messaging"
	"github.com/vovakirdan/agora-server/internal/service/notifications"
	"github.com/vovakirdan/agora-server/internal/service/push"
	"github.com/vovakirdan/agora-server/internal/service/typing"
	"github.com/vovakirdan/agora-server/internal/store"
	"github.com/vovakirdan/agora-server/internal/store/sqlite"
)

type testEnv struct {
	ts     *httptest.Server
	server *Server
	store  *sqlite.SQLiteStore
	auth   *auth.Service
	deps   Deps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := logpkg.Nop()
	cfg := config.Default()
	cfg.WSRateLimit = 0

	jwtCfg := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	}
	authSvc := auth.NewService(st, jwtCfg)

	registry := core.NewRegistry(logger)
	dispatcher := core.NewDispatcher(registry, logger, 2, 64)
	ctx, cancel := context.WithCancel(context.Background())
	go dispatcher.Run(ctx)
	t.Cleanup(cancel)

	clk := clock.New()
	pusher := push.New(st, dispatcher, logger)
	act := activity.NewService(st, registry, dispatcher, clk, logger)
	tracker := typing.NewTracker(st, pusher, clk, cfg.TypingTTL, logger)
	t.Cleanup(tracker.Close)

	deps := Deps{
		Accounts:      st,
		Auth:          authSvc,
		Authenticator: auth.NewAuthenticator(auth.NewJWTVerifier(jwtCfg), st, logger),
		Registry:      registry,
		Messaging:     messaging.NewService(st, pusher, clk, cfg.MaxMessageLength, logger),
		Notifications: notifications.NewService(st, pusher, act, clk, notifications.Config{
			DedupWindow:   cfg.DedupWindow,
			RetentionDays: cfg.NotificationRetentionDays,
		}, logger),
		Typing:   tracker,
		Activity: act,
	}

	server := NewServer(deps, &cfg, logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, server: server, store: st, auth: authSvc, deps: deps}
}

// register creates a user through the service and returns its id and token.
func (e *testEnv) register(t *testing.T, username string) (int64, string) {
	t.Helper()
	token, err := e.auth.Register(context.Background(), username, username+"@example.org", "password123")
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	claims, err := e.auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	return claims.UserID, token
}

// createAdmin stores an admin account directly and issues a token for it.
func (e *testEnv) createAdmin(t *testing.T, username string) (int64, string) {
	t.Helper()
	hash, err := auth.HashPassword("password123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	acc := &store.Account{
		Username:     username,
		Email:        username + "@example.org",
		PasswordHash: hash,
		Role:         core.RoleAdmin,
	}
	if err := e.store.CreateAccount(context.Background(), acc); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	token, err := e.auth.IssueFor(acc)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return acc.ID, token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *stdhttp.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := stdhttp.NewRequest(method, e.ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *stdhttp.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func expectStatus(t *testing.T, resp *stdhttp.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s %s: status %d, want %d", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want)
	}
}

func (e *testEnv) dial(t *testing.T, ctx context.Context, path, token string) *websocket.Conn {
	t.Helper()
	url := strings.Replace(e.ts.URL, "http", "ws", 1) + path
	if token != "" {
		url += "?access_token=" + token
	}
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

// wireEnvelope is an envelope as read by a test client.
type wireEnvelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

func readEnvelope(t *testing.T, ctx context.Context, conn *websocket.Conn) wireEnvelope {
	t.Helper()
	var env wireEnvelope
	if err := wsjson.Read(ctx, conn, &env); err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	return env
}

// readUntil skips envelopes until one of the wanted type arrives.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string) wireEnvelope {
	t.Helper()
	for {
		env := readEnvelope(t, ctx, conn)
		if env.Type == typ {
			return env
		}
	}
}

func sendInbound(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, data any) {
	t.Helper()
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		raw = b
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: raw}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// waitForSessions blocks until the registry holds n sessions.
func (e *testEnv) waitForSessions(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for e.deps.Registry.Count() != n {
		if time.Now().After(deadline) {
			t.Fatalf("registry holds %d sessions, want %d", e.deps.Registry.Count(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
