package core

import (
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
)

// Registry maps principal names to their live sessions.
//
// Each principal's sessions are kept in an immutable slice replaced through
// xsync's per-key Compute, so lookups never lock and writers only contend
// with writers of the same principal.
type Registry struct {
	sessions *xsync.MapOf[string, []Session]
	owners   *xsync.MapOf[string, string]
	log      *zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zerolog.Logger) *Registry {
	return &Registry{
		sessions: xsync.NewMapOf[string, []Session](),
		owners:   xsync.NewMapOf[string, string](),
		log:      logger,
	}
}

// Register adds s under principal. Registering the same session twice is a no-op.
func (r *Registry) Register(principal string, s Session) {
	r.owners.Store(s.ID(), principal)
	r.sessions.Compute(principal, func(old []Session, _ bool) ([]Session, bool) {
		for _, existing := range old {
			if existing.ID() == s.ID() {
				return old, false
			}
		}
		next := make([]Session, len(old), len(old)+1)
		copy(next, old)
		return append(next, s), false
	})

	r.log.Debug().
		Str("principal", principal).
		Str("session_id", s.ID()).
		Msg("session registered")
}

// Unregister removes s. It reports whether this call removed it, so exactly
// one of several concurrent callers observes true.
func (r *Registry) Unregister(s Session) bool {
	principal, ok := r.owners.LoadAndDelete(s.ID())
	if !ok {
		return false
	}

	r.sessions.Compute(principal, func(old []Session, loaded bool) ([]Session, bool) {
		if !loaded {
			return nil, true
		}
		next := make([]Session, 0, len(old))
		for _, existing := range old {
			if existing.ID() != s.ID() {
				next = append(next, existing)
			}
		}
		return next, len(next) == 0
	})

	r.log.Debug().
		Str("principal", principal).
		Str("session_id", s.ID()).
		Msg("session unregistered")
	return true
}

// Lookup returns the sessions of principal in registration order.
// The returned slice is shared and must not be modified.
func (r *Registry) Lookup(principal string) []Session {
	sessions, _ := r.sessions.Load(principal)
	return sessions
}

// Select returns every session whose principal satisfies pred.
func (r *Registry) Select(pred func(*Principal) bool) []Session {
	var out []Session
	r.sessions.Range(func(_ string, sessions []Session) bool {
		for _, s := range sessions {
			if pred(s.Principal()) {
				out = append(out, s)
			}
		}
		return true
	})
	return out
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	return r.owners.Size()
}

// Principals returns the number of principals with at least one session.
func (r *Registry) Principals() int {
	return r.sessions.Size()
}

// CountWhere counts principals whose sessions satisfy pred.
func (r *Registry) CountWhere(pred func(*Principal) bool) int {
	n := 0
	r.sessions.Range(func(_ string, sessions []Session) bool {
		if len(sessions) > 0 && pred(sessions[0].Principal()) {
			n++
		}
		return true
	})
	return n
}

// Snapshot returns metadata for every live session.
func (r *Registry) Snapshot() []SessionInfo {
	infos := make([]SessionInfo, 0, r.Count())
	r.sessions.Range(func(_ string, sessions []Session) bool {
		for _, s := range sessions {
			infos = append(infos, s.Info())
		}
		return true
	})
	return infos
}
