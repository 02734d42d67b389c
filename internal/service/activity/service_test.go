package activity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/agora-server/internal/core"
	logpkg "github.com/vovakirdan/agora-server/internal/log"
	"github.com/vovakirdan/agora-server/internal/proto"
	"github.com/vovakirdan/agora-server/internal/store/sqlite"
)

type recordingBroadcaster struct {
	mu   sync.Mutex
	envs []proto.Envelope
}

func (b *recordingBroadcaster) BroadcastToAdmins(env proto.Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.envs = append(b.envs, env)
}

func (b *recordingBroadcaster) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.envs))
	for _, e := range b.envs {
		out = append(out, e.Type)
	}
	return out
}

type fakeSession struct {
	id string
	p  *core.Principal
}

func (s fakeSession) ID() string                 { return s.id }
func (s fakeSession) Principal() *core.Principal { return s.p }
func (s fakeSession) Info() core.SessionInfo     { return core.SessionInfo{SessionID: s.id} }
func (s fakeSession) Send([]byte) error          { return nil }

func newTestService(t *testing.T) (*Service, *core.Registry, *recordingBroadcaster, *clock.Mock) {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	clk := clock.NewMock()
	clk.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	registry := core.NewRegistry(logpkg.Nop())
	bcast := &recordingBroadcaster{}
	return NewService(st, registry, bcast, clk, logpkg.Nop()), registry, bcast, clk
}

func TestRecordAndRecent(t *testing.T) {
	svc, _, bcast, clk := newTestService(t)
	ctx := context.Background()

	for _, summary := range []string{"first", "second", "third"} {
		require.NoError(t, svc.Record(ctx, "test", nil, summary))
		clk.Add(time.Minute)
	}

	recent, err := svc.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "third", recent[0].Summary)
	require.Equal(t, "second", recent[1].Summary)

	all, err := svc.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)

	require.Equal(t, []string{proto.TypeNewActivity, proto.TypeNewActivity, proto.TypeNewActivity}, bcast.types())
}

func TestStats_CountsSessionsAndWindow(t *testing.T) {
	svc, registry, bcast, clk := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, "old", nil, "yesterday"))
	clk.Add(25 * time.Hour)
	require.NoError(t, svc.Record(ctx, "new", nil, "today"))

	admin := &core.Principal{Name: "root@example.org", UserID: 1, Roles: []string{core.RoleUser, core.RoleAdmin}}
	user := &core.Principal{Name: "user@example.org", UserID: 2, Roles: []string{core.RoleUser}}
	registry.Register(admin.Name, fakeSession{id: "a1", p: admin})
	registry.Register(admin.Name, fakeSession{id: "a2", p: admin})
	registry.Register(user.Name, fakeSession{id: "u1", p: user})

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, Stats{
		ActivitiesTotal:   2,
		ActivitiesLast24h: 1,
		SessionsActive:    3,
		UsersOnline:       2,
		AdminsOnline:      1,
	}, stats)

	require.NoError(t, svc.PublishStats(ctx))
	types := bcast.types()
	require.Equal(t, proto.TypeStatsUpdate, types[len(types)-1])
}

func TestBroadcastSystemMessage(t *testing.T) {
	svc, _, bcast, _ := newTestService(t)
	ctx := context.Background()

	admin := &core.Principal{Name: "root", UserID: 1, Roles: []string{core.RoleAdmin}}
	user := &core.Principal{Name: "user", UserID: 2, Roles: []string{core.RoleUser}}

	require.ErrorIs(t, svc.BroadcastSystemMessage(ctx, admin, "  "), core.ErrValidation)
	require.ErrorIs(t, svc.BroadcastSystemMessage(ctx, user, "hi"), core.ErrAuthorization)

	require.NoError(t, svc.BroadcastSystemMessage(ctx, admin, "deploy at 18:00"))
	require.Equal(t, []string{proto.TypeSystemMessage, proto.TypeNewActivity}, bcast.types())

	recent, err := svc.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, KindSystemMessage, recent[0].Kind)
}
