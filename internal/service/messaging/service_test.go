package messaging

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/agora-server/internal/core"
	logpkg "github.com/vovakirdan/agora-server/internal/log"
	"github.com/vovakirdan/agora-server/internal/proto"
	"github.com/vovakirdan/agora-server/internal/store"
	"github.com/vovakirdan/agora-server/internal/store/sqlite"
)

type pushed struct {
	userID int64
	env    proto.Envelope
}

type recordingPusher struct {
	mu     sync.Mutex
	events []pushed
}

func (p *recordingPusher) ToUser(userID int64, env proto.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, pushed{userID: userID, env: env})
}

func (p *recordingPusher) ofType(typ string) []pushed {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []pushed
	for _, e := range p.events {
		if e.env.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	svc    *Service
	st     *sqlite.SQLiteStore
	pusher *recordingPusher
	clock  *clock.Mock
	alice  *store.Account
	bob    *store.Account
	carol  *store.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	mk := func(name string) *store.Account {
		acc := &store.Account{Username: name, Email: name + "@example.org", PasswordHash: "x"}
		require.NoError(t, st.CreateAccount(ctx, acc))
		return acc
	}

	clk := clock.NewMock()
	clk.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	pusher := &recordingPusher{}

	return &fixture{
		svc:    NewService(st, pusher, clk, 0, logpkg.Nop()),
		st:     st,
		pusher: pusher,
		clock:  clk,
		alice:  mk("alice"),
		bob:    mk("bob"),
		carol:  mk("carol"),
	}
}

func (f *fixture) unread(t *testing.T, convID, userID int64) int {
	t.Helper()
	conv, err := f.st.GetConversation(context.Background(), convID)
	require.NoError(t, err)
	return conv.UnreadFor(userID)
}

func TestStartOrGetConversation_IsIdempotentForUnorderedPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c1, err := f.svc.StartOrGetConversation(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)
	c2, err := f.svc.StartOrGetConversation(ctx, f.bob.ID, f.alice.ID)
	require.NoError(t, err)
	c3, err := f.svc.StartOrGetConversation(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)

	require.Equal(t, c1.ID, c2.ID)
	require.Equal(t, c1.ID, c3.ID)

	convs, err := f.st.ListConversations(ctx, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
}

func TestStartOrGetConversation_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.StartOrGetConversation(ctx, f.alice.ID, f.alice.ID)
	require.ErrorIs(t, err, core.ErrValidation)
	require.Equal(t, core.ErrCodeSelfConversation, core.CodeOf(err))

	_, err = f.svc.StartOrGetConversation(ctx, f.alice.ID, 9999)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestSendMessage_UnreadCounterAndBulkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.svc.StartOrGetConversation(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)

	const n = 5
	for i := range n {
		_, err := f.svc.SendMessage(ctx, conv.ID, "msg "+strings.Repeat("x", i), f.alice.ID)
		require.NoError(t, err)
		f.clock.Add(time.Second)
	}
	require.Equal(t, n, f.unread(t, conv.ID, f.bob.ID))
	require.Equal(t, 0, f.unread(t, conv.ID, f.alice.ID))
	require.Len(t, f.pusher.ofType(proto.TypeNewMessage), n)

	changed, err := f.svc.MarkAllAsRead(ctx, conv.ID, f.bob.ID)
	require.NoError(t, err)
	require.Equal(t, n, changed)
	require.Equal(t, 0, f.unread(t, conv.ID, f.bob.ID))

	changed, err = f.svc.MarkAllAsRead(ctx, conv.ID, f.bob.ID)
	require.NoError(t, err)
	require.Zero(t, changed)
	require.Equal(t, 0, f.unread(t, conv.ID, f.bob.ID))

	receipts := f.pusher.ofType(proto.TypeMessagesRead)
	require.Len(t, receipts, 1, "second bulk read changes nothing and pushes nothing")
	require.Equal(t, f.alice.ID, receipts[0].userID)
	require.Len(t, receipts[0].env.Data.(BulkReadReceipt).MessageIDs, n)
}

func TestSendMessage_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv, err := f.svc.StartOrGetConversation(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)

	_, err = f.svc.SendMessage(ctx, conv.ID, "   \n\t", f.alice.ID)
	require.ErrorIs(t, err, core.ErrValidation)
	require.Equal(t, core.ErrCodeEmptyMessage, core.CodeOf(err))

	_, err = f.svc.SendMessage(ctx, conv.ID, strings.Repeat("й", DefaultMaxMessageLength+1), f.alice.ID)
	require.ErrorIs(t, err, core.ErrValidation)
	require.Equal(t, core.ErrCodeMessageTooLong, core.CodeOf(err))

	_, err = f.svc.SendMessage(ctx, conv.ID, strings.Repeat("й", DefaultMaxMessageLength), f.alice.ID)
	require.NoError(t, err)

	_, err = f.svc.SendMessage(ctx, conv.ID, "hi", f.carol.ID)
	require.ErrorIs(t, err, core.ErrAuthorization)

	_, err = f.svc.SendMessage(ctx, 4242, "hi", f.alice.ID)
	require.ErrorIs(t, err, core.ErrNotFound)

	require.Equal(t, 1, f.unread(t, conv.ID, f.bob.ID), "rejected sends must not touch counters")
}

func TestSendMessage_TrimsAndTruncatesPreview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv, err := f.svc.StartOrGetConversation(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)

	long := strings.Repeat("ab", 80)
	msg, err := f.svc.SendMessage(ctx, conv.ID, "  "+long+"  ", f.alice.ID)
	require.NoError(t, err)
	require.Equal(t, long, msg.Body)

	stored, err := f.st.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Equal(t, long[:PreviewLength]+"…", stored.LastMessage)
	require.Equal(t, "hello", Preview("hello"))
}

func TestMarkMessageAsRead_IdempotentAndRecipientOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv, err := f.svc.StartOrGetConversation(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)
	msg, err := f.svc.SendMessage(ctx, conv.ID, "hello", f.alice.ID)
	require.NoError(t, err)

	err = f.svc.MarkMessageAsRead(ctx, msg.ID, f.alice.ID)
	require.ErrorIs(t, err, core.ErrAuthorization)
	require.ErrorIs(t, f.svc.MarkMessageAsRead(ctx, msg.ID, f.carol.ID), core.ErrAuthorization)

	require.NoError(t, f.svc.MarkMessageAsRead(ctx, msg.ID, f.bob.ID))
	f.clock.Add(time.Minute)
	require.NoError(t, f.svc.MarkMessageAsRead(ctx, msg.ID, f.bob.ID))

	stored, err := f.st.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.True(t, stored.Read)
	require.NotNil(t, stored.ReadAt)
	require.True(t, stored.ReadAt.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)), "read_at set once")
	require.Equal(t, 0, f.unread(t, conv.ID, f.bob.ID))

	receipts := f.pusher.ofType(proto.TypeMessageRead)
	require.Len(t, receipts, 1)
	require.Equal(t, f.alice.ID, receipts[0].userID)
}

func TestDeleteAndEditMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv, err := f.svc.StartOrGetConversation(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)
	first, err := f.svc.SendMessage(ctx, conv.ID, "first", f.alice.ID)
	require.NoError(t, err)
	second, err := f.svc.SendMessage(ctx, conv.ID, "second", f.alice.ID)
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.DeleteMessage(ctx, first.ID, f.bob.ID), core.ErrAuthorization)
	_, err = f.svc.EditMessage(ctx, first.ID, "changed", f.bob.ID)
	require.ErrorIs(t, err, core.ErrAuthorization)
	_, err = f.svc.EditMessage(ctx, first.ID, "  ", f.alice.ID)
	require.ErrorIs(t, err, core.ErrValidation)

	f.clock.Add(time.Minute)
	edited, err := f.svc.EditMessage(ctx, second.ID, "second, fixed", f.alice.ID)
	require.NoError(t, err)
	require.True(t, edited.Edited)
	require.NotNil(t, edited.EditedAt)
	require.Len(t, f.pusher.ofType(proto.TypeMessageEdited), 1)

	require.NoError(t, f.svc.DeleteMessage(ctx, first.ID, f.alice.ID))
	require.NoError(t, f.svc.DeleteMessage(ctx, first.ID, f.alice.ID))
	require.Len(t, f.pusher.ofType(proto.TypeMessageDeleted), 1)
	require.Equal(t, 1, f.unread(t, conv.ID, f.bob.ID), "deleting an unread message releases its count")

	_, err = f.svc.EditMessage(ctx, first.ID, "resurrect", f.alice.ID)
	require.ErrorIs(t, err, core.ErrValidation)
	require.Equal(t, core.ErrCodeMessageDeleted, core.CodeOf(err))

	page, err := f.svc.GetMessages(ctx, conv.ID, 0, 10, f.bob.ID)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "second, fixed", page[0].Body)
}

func TestGetMessages_NewestFirstPaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv, err := f.svc.StartOrGetConversation(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)

	for _, body := range []string{"m1", "m2", "m3", "m4", "m5"} {
		_, err := f.svc.SendMessage(ctx, conv.ID, body, f.alice.ID)
		require.NoError(t, err)
		f.clock.Add(time.Second)
	}

	page0, err := f.svc.GetMessages(ctx, conv.ID, 0, 2, f.bob.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"m5", "m4"}, bodies(page0))

	page2, err := f.svc.GetMessages(ctx, conv.ID, 2, 2, f.bob.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"m1"}, bodies(page2))

	_, err = f.svc.GetMessages(ctx, conv.ID, 0, 2, f.carol.ID)
	require.ErrorIs(t, err, core.ErrAuthorization)

	require.Equal(t, DefaultPageSize, ClampPageSize(0))
	require.Equal(t, MaxPageSize, ClampPageSize(1000))
	require.Equal(t, 1, ClampPageSize(1))
}

func TestDeleteConversation_HiddenFromListButFetchable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv, err := f.svc.StartOrGetConversation(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, conv.ID, "hello", f.alice.ID)
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.DeleteConversation(ctx, conv.ID, f.carol.ID), core.ErrAuthorization)
	require.NoError(t, f.svc.DeleteConversation(ctx, conv.ID, f.bob.ID))

	list, err := f.svc.ListConversations(ctx, f.bob.ID)
	require.NoError(t, err)
	require.Empty(t, list)

	view, err := f.svc.GetConversation(ctx, conv.ID, f.bob.ID)
	require.NoError(t, err)
	require.True(t, view.Deleted)
	require.Equal(t, "alice", view.Other.Username)

	total, err := f.svc.UnreadCount(ctx, f.bob.ID)
	require.NoError(t, err)
	require.Zero(t, total)

	// A new message revives the thread for both sides.
	_, err = f.svc.SendMessage(ctx, conv.ID, "still there?", f.alice.ID)
	require.NoError(t, err)
	list, err = f.svc.ListConversations(ctx, f.bob.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 2, list[0].UnreadCount)
}

func TestSearchUsers_ExcludesRequester(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	users, err := f.svc.SearchUsers(ctx, "example.org", f.alice.ID)
	require.NoError(t, err)
	require.Len(t, users, 2)
	for _, u := range users {
		require.NotEqual(t, f.alice.ID, u.ID)
	}

	users, err = f.svc.SearchUsers(ctx, "   ", f.alice.ID)
	require.NoError(t, err)
	require.Empty(t, users)
}

func bodies(msgs []*store.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Body)
	}
	return out
}
