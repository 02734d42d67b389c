package core

import "strings"

// Role names carried on a Principal.
const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// Principal is the canonical routing identity of a connection.
type Principal struct {
	Name      string
	UserID    int64
	Roles     []string
	Anonymous bool
}

// AnonymousPrincipal is used on channels that tolerate unauthenticated clients.
func AnonymousPrincipal() *Principal {
	return &Principal{Name: "anonymous", Anonymous: true}
}

// RoutingName normalizes an account into its routing key: lowercased email,
// falling back to lowercased username.
func RoutingName(email, username string) string {
	if e := strings.TrimSpace(email); e != "" {
		return strings.ToLower(e)
	}
	return strings.ToLower(strings.TrimSpace(username))
}

// HasRole reports whether the principal carries role.
func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the principal may use admin-only channels.
func (p *Principal) IsAdmin() bool {
	return p.HasRole(RoleAdmin)
}
