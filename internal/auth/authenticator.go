package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/agora-server/internal/core"
	"github.com/vovakirdan/agora-server/internal/store"
)

// AttrAccessToken is the connection attribute holding a token captured from the query string.
const AttrAccessToken = "access_token"

var (
	// ErrMissingCredential is returned when neither header nor attribute carries a token.
	ErrMissingCredential = errors.New("missing credential")
	// ErrAccountMismatch is returned when a token names a different account than its id resolves to.
	ErrAccountMismatch = errors.New("token does not match account")
	// ErrTokenExpired is returned when the verifier reports an expiry in the past.
	ErrTokenExpired = errors.New("token expired")
)

// ConnectionRequest is what the authenticator sees of a connection being established.
type ConnectionRequest struct {
	Header     http.Header
	Attributes map[string]any
}

// CaptureHandshake builds a ConnectionRequest from the upgrade request,
// carrying the access_token query parameter for clients that cannot set headers.
func CaptureHandshake(r *http.Request) ConnectionRequest {
	req := ConnectionRequest{
		Header:     r.Header.Clone(),
		Attributes: make(map[string]any),
	}
	if token := r.URL.Query().Get(AttrAccessToken); token != "" {
		req.Attributes[AttrAccessToken] = token
	}
	return req
}

// Authenticator resolves connection credentials to principals.
type Authenticator struct {
	verifier TokenVerifier
	accounts store.AccountStore
	now      func() time.Time
	log      *zerolog.Logger
}

// NewAuthenticator creates an authenticator backed by verifier and accounts.
func NewAuthenticator(verifier TokenVerifier, accounts store.AccountStore, logger *zerolog.Logger) *Authenticator {
	return &Authenticator{
		verifier: verifier,
		accounts: accounts,
		now:      time.Now,
		log:      logger,
	}
}

// Authenticate returns the principal of req. Every error wraps core.ErrAuthentication.
func (a *Authenticator) Authenticate(ctx context.Context, req ConnectionRequest) (*core.Principal, error) {
	token := bearerToken(req)
	if token == "" {
		return nil, authError(ErrMissingCredential)
	}

	identity, expiresAt, err := a.verifier.Verify(token)
	if err != nil {
		a.log.Debug().Err(err).Msg("credential rejected")
		return nil, authError(err)
	}
	if !expiresAt.IsZero() && !expiresAt.After(a.now()) {
		return nil, authError(ErrTokenExpired)
	}

	acc, err := a.accounts.GetAccountByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			a.log.Warn().Int64("user_id", identity.UserID).Msg("token for unknown account")
			return nil, authError(ErrAccountMismatch)
		}
		a.log.Error().Err(err).Int64("user_id", identity.UserID).Msg("load account")
		return nil, authError(fmt.Errorf("load account: %w", err))
	}
	if identity.Username != "" && !strings.EqualFold(identity.Username, acc.Username) {
		a.log.Warn().
			Int64("user_id", identity.UserID).
			Str("token_username", identity.Username).
			Msg("token username does not match account")
		return nil, authError(ErrAccountMismatch)
	}

	return PrincipalFor(acc), nil
}

// PrincipalFor builds the routing principal of an account.
func PrincipalFor(acc *store.Account) *core.Principal {
	roles := []string{core.RoleUser}
	switch acc.Role {
	case core.RoleAdmin:
		roles = append(roles, core.RoleModerator, core.RoleAdmin)
	case core.RoleModerator:
		roles = append(roles, core.RoleModerator)
	}
	return &core.Principal{
		Name:   core.RoutingName(acc.Email, acc.Username),
		UserID: acc.ID,
		Roles:  roles,
	}
}

func bearerToken(req ConnectionRequest) string {
	if h := req.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok && strings.TrimSpace(token) != "" {
			return strings.TrimSpace(token)
		}
	}
	if v, ok := req.Attributes[AttrAccessToken].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func authError(err error) error {
	return fmt.Errorf("%w: %w", core.ErrAuthentication, err)
}
