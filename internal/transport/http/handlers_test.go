package http

import (
	"fmt"
	"io"
	stdhttp "net/http"
	"testing"

	"github.com/vovakirdan/agora-server/internal/service/activity"
	"github.com/vovakirdan/agora-server/internal/service/messaging"
	"github.com/vovakirdan/agora-server/internal/service/notifications"
)

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, stdhttp.MethodGet, "/health", "", nil)
	expectStatus(t, resp, stdhttp.StatusOK)

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, stdhttp.MethodPost, "/api/register", "", RegisterRequest{
		Username: "alice",
		Email:    "alice@example.org",
		Password: "password123",
	})
	expectStatus(t, resp, stdhttp.StatusCreated)
	var reg AuthResponse
	decodeBody(t, resp, &reg)
	if reg.Token == "" {
		t.Fatal("expected token on register")
	}

	resp = env.do(t, stdhttp.MethodPost, "/api/register", "", RegisterRequest{
		Username: "alice",
		Password: "password123",
	})
	expectStatus(t, resp, stdhttp.StatusConflict)

	resp = env.do(t, stdhttp.MethodPost, "/api/register", "", RegisterRequest{
		Username: "bo",
		Password: "password123",
	})
	expectStatus(t, resp, stdhttp.StatusBadRequest)

	resp = env.do(t, stdhttp.MethodPost, "/api/login", "", LoginRequest{Login: "ALICE@example.org", Password: "password123"})
	expectStatus(t, resp, stdhttp.StatusOK)

	resp = env.do(t, stdhttp.MethodPost, "/api/login", "", LoginRequest{Login: "alice", Password: "wrong-password"})
	expectStatus(t, resp, stdhttp.StatusUnauthorized)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	expectStatus(t, env.do(t, stdhttp.MethodGet, "/api/conversations", "", nil), stdhttp.StatusUnauthorized)
	expectStatus(t, env.do(t, stdhttp.MethodGet, "/api/notifications", "not-a-token", nil), stdhttp.StatusUnauthorized)
}

func TestSearchUsersExcludesCaller(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.register(t, "alice")
	env.register(t, "alicia")

	expectStatus(t, env.do(t, stdhttp.MethodGet, "/api/users/search?q=al", aliceToken, nil), stdhttp.StatusBadRequest)

	resp := env.do(t, stdhttp.MethodGet, "/api/users/search?q=ali", aliceToken, nil)
	expectStatus(t, resp, stdhttp.StatusOK)
	var users []messaging.UserView
	decodeBody(t, resp, &users)
	if len(users) != 1 || users[0].Username != "alicia" {
		t.Fatalf("unexpected search result: %+v", users)
	}
}

func TestConversationLifecycle(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceToken := env.register(t, "alice")
	bobID, bobToken := env.register(t, "bob")
	_, carolToken := env.register(t, "carol")

	expectStatus(t, env.do(t, stdhttp.MethodPost, "/api/conversations", aliceToken, StartConversationRequest{UserID: aliceID}), stdhttp.StatusBadRequest)
	expectStatus(t, env.do(t, stdhttp.MethodPost, "/api/conversations", aliceToken, StartConversationRequest{UserID: 9999}), stdhttp.StatusNotFound)

	resp := env.do(t, stdhttp.MethodPost, "/api/conversations", aliceToken, StartConversationRequest{UserID: bobID})
	expectStatus(t, resp, stdhttp.StatusOK)
	var conv messaging.ConversationView
	decodeBody(t, resp, &conv)
	if conv.Other.ID != bobID {
		t.Fatalf("other user = %d, want %d", conv.Other.ID, bobID)
	}

	// Starting again from the other side yields the same conversation.
	resp = env.do(t, stdhttp.MethodPost, "/api/conversations", bobToken, StartConversationRequest{UserID: aliceID})
	var again messaging.ConversationView
	decodeBody(t, resp, &again)
	if again.ID != conv.ID {
		t.Fatalf("conversation id %d, want %d", again.ID, conv.ID)
	}

	msgPath := fmt.Sprintf("/api/conversations/%d/messages", conv.ID)
	expectStatus(t, env.do(t, stdhttp.MethodPost, msgPath, aliceToken, SendMessageRequest{Text: "   "}), stdhttp.StatusBadRequest)
	expectStatus(t, env.do(t, stdhttp.MethodPost, msgPath, carolToken, SendMessageRequest{Text: "hi"}), stdhttp.StatusForbidden)

	resp = env.do(t, stdhttp.MethodPost, msgPath, aliceToken, SendMessageRequest{Text: "  hello bob  "})
	expectStatus(t, resp, stdhttp.StatusCreated)
	var sent messaging.MessageView
	decodeBody(t, resp, &sent)
	if sent.Body != "hello bob" {
		t.Fatalf("body = %q, want trimmed text", sent.Body)
	}

	var unread CountResponse
	decodeBody(t, env.do(t, stdhttp.MethodGet, "/api/messages/unread", bobToken, nil), &unread)
	if unread.Count != 1 {
		t.Fatalf("bob unread = %d, want 1", unread.Count)
	}

	resp = env.do(t, stdhttp.MethodGet, msgPath+"?page=0&size=10", bobToken, nil)
	expectStatus(t, resp, stdhttp.StatusOK)
	var msgs []messaging.MessageView
	decodeBody(t, resp, &msgs)
	if len(msgs) != 1 || msgs[0].ID != sent.ID {
		t.Fatalf("unexpected messages: %+v", msgs)
	}

	expectStatus(t, env.do(t, stdhttp.MethodPut, fmt.Sprintf("/api/messages/%d", sent.ID), bobToken, SendMessageRequest{Text: "hijack"}), stdhttp.StatusForbidden)
	resp = env.do(t, stdhttp.MethodPut, fmt.Sprintf("/api/messages/%d", sent.ID), aliceToken, SendMessageRequest{Text: "hello again"})
	expectStatus(t, resp, stdhttp.StatusOK)
	var edited messaging.MessageView
	decodeBody(t, resp, &edited)
	if !edited.Edited || edited.Body != "hello again" {
		t.Fatalf("unexpected edit result: %+v", edited)
	}

	var read CountResponse
	resp = env.do(t, stdhttp.MethodPost, fmt.Sprintf("/api/conversations/%d/read", conv.ID), bobToken, nil)
	expectStatus(t, resp, stdhttp.StatusOK)
	decodeBody(t, resp, &read)
	if read.Count != 1 {
		t.Fatalf("marked %d, want 1", read.Count)
	}
	decodeBody(t, env.do(t, stdhttp.MethodGet, "/api/messages/unread", bobToken, nil), &unread)
	if unread.Count != 0 {
		t.Fatalf("bob unread = %d after read-all, want 0", unread.Count)
	}

	expectStatus(t, env.do(t, stdhttp.MethodGet, fmt.Sprintf("/api/conversations/%d", conv.ID), carolToken, nil), stdhttp.StatusForbidden)
	expectStatus(t, env.do(t, stdhttp.MethodDelete, fmt.Sprintf("/api/conversations/%d", conv.ID), aliceToken, nil), stdhttp.StatusNoContent)

	var list []messaging.ConversationView
	decodeBody(t, env.do(t, stdhttp.MethodGet, "/api/conversations", aliceToken, nil), &list)
	if len(list) != 0 {
		t.Fatalf("deleted conversation still listed: %+v", list)
	}
	expectStatus(t, env.do(t, stdhttp.MethodGet, fmt.Sprintf("/api/conversations/%d", conv.ID), aliceToken, nil), stdhttp.StatusOK)
}

func TestInvalidPathID(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.register(t, "alice")

	expectStatus(t, env.do(t, stdhttp.MethodGet, "/api/conversations/abc", token, nil), stdhttp.StatusBadRequest)
	expectStatus(t, env.do(t, stdhttp.MethodDelete, "/api/messages/-4", token, nil), stdhttp.StatusBadRequest)
}

func TestNotificationEndpoints(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceToken := env.register(t, "alice")
	bobID, bobToken := env.register(t, "bob")
	_, adminToken := env.createAdmin(t, "root")

	entity := "PUBLICATION"
	entityID := int64(42)
	req := CreateNotificationRequest{
		RecipientID: aliceID,
		Type:        notifications.TypeComment,
		Text:        "bob commented on your publication",
		ActorID:     &bobID,
		EntityType:  &entity,
		EntityID:    &entityID,
	}

	resp := env.do(t, stdhttp.MethodPost, "/api/admin/notifications", adminToken, req)
	expectStatus(t, resp, stdhttp.StatusCreated)
	var created notifications.View
	decodeBody(t, resp, &created)
	if created.ActionURL != "/publications/42" {
		t.Fatalf("action url = %q", created.ActionURL)
	}
	if created.Priority != notifications.PriorityNormal {
		t.Fatalf("priority = %q, want default", created.Priority)
	}

	// Same notification inside the dedup window is suppressed.
	expectStatus(t, env.do(t, stdhttp.MethodPost, "/api/admin/notifications", adminToken, req), stdhttp.StatusNoContent)

	bad := req
	bad.Type = "SPAM"
	expectStatus(t, env.do(t, stdhttp.MethodPost, "/api/admin/notifications", adminToken, bad), stdhttp.StatusBadRequest)

	var unread CountResponse
	decodeBody(t, env.do(t, stdhttp.MethodGet, "/api/notifications/unread", aliceToken, nil), &unread)
	if unread.Count != 1 {
		t.Fatalf("unread = %d, want 1", unread.Count)
	}

	var list []notifications.View
	decodeBody(t, env.do(t, stdhttp.MethodGet, "/api/notifications/recent?limit=5", aliceToken, nil), &list)
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("unexpected recent list: %+v", list)
	}

	path := fmt.Sprintf("/api/notifications/%d", created.ID)
	expectStatus(t, env.do(t, stdhttp.MethodPost, path+"/read", bobToken, nil), stdhttp.StatusForbidden)
	expectStatus(t, env.do(t, stdhttp.MethodPost, path+"/read", aliceToken, nil), stdhttp.StatusNoContent)
	decodeBody(t, env.do(t, stdhttp.MethodGet, "/api/notifications/unread", aliceToken, nil), &unread)
	if unread.Count != 0 {
		t.Fatalf("unread = %d after mark read, want 0", unread.Count)
	}

	expectStatus(t, env.do(t, stdhttp.MethodDelete, path, bobToken, nil), stdhttp.StatusForbidden)
	expectStatus(t, env.do(t, stdhttp.MethodDelete, path, aliceToken, nil), stdhttp.StatusNoContent)
	expectStatus(t, env.do(t, stdhttp.MethodDelete, path, aliceToken, nil), stdhttp.StatusNotFound)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	env := newTestEnv(t)
	_, userToken := env.register(t, "alice")
	_, adminToken := env.createAdmin(t, "root")

	expectStatus(t, env.do(t, stdhttp.MethodGet, "/api/admin/stats", userToken, nil), stdhttp.StatusForbidden)
	expectStatus(t, env.do(t, stdhttp.MethodGet, "/api/admin/stats", "", nil), stdhttp.StatusUnauthorized)

	resp := env.do(t, stdhttp.MethodGet, "/api/admin/stats", adminToken, nil)
	expectStatus(t, resp, stdhttp.StatusOK)
	var stats activity.Stats
	decodeBody(t, resp, &stats)
	if stats.SessionsActive != 0 {
		t.Fatalf("sessions = %d, want 0", stats.SessionsActive)
	}

	expectStatus(t, env.do(t, stdhttp.MethodPost, "/api/admin/system-message", adminToken, SystemMessageRequest{Text: ""}), stdhttp.StatusBadRequest)
	expectStatus(t, env.do(t, stdhttp.MethodPost, "/api/admin/system-message", adminToken, SystemMessageRequest{Text: "maintenance at noon"}), stdhttp.StatusAccepted)

	var views []activity.View
	decodeBody(t, env.do(t, stdhttp.MethodGet, "/api/admin/activities?limit=10", adminToken, nil), &views)
	if len(views) != 1 || views[0].Kind != activity.KindSystemMessage {
		t.Fatalf("unexpected activities: %+v", views)
	}

	var purged AffectedResponse
	resp = env.do(t, stdhttp.MethodPost, "/api/admin/notifications/cleanup", adminToken, nil)
	expectStatus(t, resp, stdhttp.StatusOK)
	decodeBody(t, resp, &purged)
	if purged.Affected != 0 {
		t.Fatalf("purged %d, want 0", purged.Affected)
	}
}
