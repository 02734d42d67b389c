package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vovakirdan/agora-server/internal/core"
	logpkg "github.com/vovakirdan/agora-server/internal/log"
	"github.com/vovakirdan/agora-server/internal/store"
)

type stubVerifier struct {
	identity Identity
	expires  time.Time
	err      error
}

func (v stubVerifier) Verify(string) (Identity, time.Time, error) {
	return v.identity, v.expires, v.err
}

func newTestAuthenticator(t *testing.T) (*Authenticator, *store.Account, string) {
	t.Helper()

	svc, st := newTestAuthService(t)
	ctx := context.Background()

	token, err := svc.Register(ctx, "Carol", "Carol@Example.org", "password123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	acc, err := st.GetAccountByLogin(ctx, "carol")
	if err != nil {
		t.Fatalf("load account: %v", err)
	}

	a := NewAuthenticator(NewJWTVerifier(testJWTConfig()), st, logpkg.Nop())
	return a, acc, token
}

func TestAuthenticate_HeaderToken(t *testing.T) {
	a, acc, token := newTestAuthenticator(t)

	req := ConnectionRequest{Header: http.Header{"Authorization": []string{"Bearer " + token}}}
	p, err := a.Authenticate(context.Background(), req)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p.Name != "carol@example.org" {
		t.Fatalf("expected lowercased email as principal, got %q", p.Name)
	}
	if p.UserID != acc.ID || p.Anonymous || p.IsAdmin() {
		t.Fatalf("unexpected principal: %+v", p)
	}
}

func TestAuthenticate_QueryTokenCapturedAtHandshake(t *testing.T) {
	a, _, token := newTestAuthenticator(t)

	r := httptest.NewRequest(http.MethodGet, "/ws/messenger?access_token="+token, nil)
	req := CaptureHandshake(r)
	if req.Attributes[AttrAccessToken] != token {
		t.Fatalf("token not captured into attributes")
	}

	p, err := a.Authenticate(context.Background(), req)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p.Name != "carol@example.org" {
		t.Fatalf("unexpected principal %q", p.Name)
	}
}

func TestAuthenticate_Failures(t *testing.T) {
	a, acc, _ := newTestAuthenticator(t)
	ctx := context.Background()
	withToken := ConnectionRequest{Header: http.Header{"Authorization": []string{"Bearer x"}}}

	if _, err := a.Authenticate(ctx, ConnectionRequest{Header: http.Header{}}); !errors.Is(err, core.ErrAuthentication) || !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected missing credential, got %v", err)
	}

	if _, err := a.Authenticate(ctx, withToken); !errors.Is(err, core.ErrAuthentication) {
		t.Fatalf("expected authentication error for garbage token, got %v", err)
	}

	a.verifier = stubVerifier{identity: Identity{UserID: acc.ID, Username: "mallory"}, expires: time.Now().Add(time.Hour)}
	if _, err := a.Authenticate(ctx, withToken); !errors.Is(err, ErrAccountMismatch) {
		t.Fatalf("expected account mismatch, got %v", err)
	}

	a.verifier = stubVerifier{identity: Identity{UserID: 9999, Username: "ghost"}, expires: time.Now().Add(time.Hour)}
	if _, err := a.Authenticate(ctx, withToken); !errors.Is(err, ErrAccountMismatch) {
		t.Fatalf("expected account mismatch for unknown id, got %v", err)
	}

	a.verifier = stubVerifier{identity: Identity{UserID: acc.ID, Username: "carol"}, expires: time.Now().Add(-time.Second)}
	if _, err := a.Authenticate(ctx, withToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expired token, got %v", err)
	}
}

func TestPrincipalFor_Roles(t *testing.T) {
	admin := PrincipalFor(&store.Account{ID: 1, Username: "Root", Role: core.RoleAdmin})
	if !admin.IsAdmin() || !admin.HasRole(core.RoleModerator) {
		t.Fatalf("admin should carry admin and moderator roles: %+v", admin.Roles)
	}
	if admin.Name != "root" {
		t.Fatalf("expected lowercased username fallback, got %q", admin.Name)
	}

	user := PrincipalFor(&store.Account{ID: 2, Username: "u", Email: "U@x.io", Role: core.RoleUser})
	if user.IsAdmin() {
		t.Fatalf("plain user must not be admin")
	}
}

type brokenAccounts struct {
	store.AccountStore
	err error
}

func (b brokenAccounts) GetAccountByID(context.Context, int64) (*store.Account, error) {
	return nil, b.err
}

func TestAuthenticate_StoreFailureWrapsAuthenticationKind(t *testing.T) {
	dbErr := errors.New("database is locked")
	verifier := stubVerifier{
		identity: Identity{UserID: 7, Username: "carol"},
		expires:  time.Now().Add(time.Hour),
	}
	a := NewAuthenticator(verifier, brokenAccounts{err: dbErr}, logpkg.Nop())

	req := ConnectionRequest{Header: http.Header{"Authorization": []string{"Bearer anything"}}}
	_, err := a.Authenticate(context.Background(), req)
	if !errors.Is(err, core.ErrAuthentication) {
		t.Fatalf("expected authentication kind, got %v", err)
	}
	if !errors.Is(err, dbErr) {
		t.Fatalf("expected store error in chain, got %v", err)
	}
}
