package domain

import "time"

// Session is the single authenticated identity held by the running process.
// Permissions are copied from the role table at login, not recomputed lazily.
type Session struct {
	SubjectID   string
	Email       string
	Role        Role
	Permissions []Permission
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// IsLive reports whether the session is present and unexpired at the supplied
// moment. Expired sessions are treated as absent by every consumer even while
// still resident in memory.
func (s Session) IsLive(at time.Time) bool {
	return s.SubjectID != "" && at.Before(s.ExpiresAt)
}

// HasPermission reports whether the session grants the permission.
func (s Session) HasPermission(p Permission) bool {
	for _, held := range s.Permissions {
		if held == p {
			return true
		}
	}
	return false
}

// Extend pushes the expiry to the supplied moment plus ttl.
func (s *Session) Extend(at time.Time, ttl time.Duration) {
	s.ExpiresAt = at.Add(ttl)
}

// Profile is the authorization record loaded from the profile store, keyed by
// the subject id returned from credential verification. Role arrives as a raw
// string and must pass ParseRole before a session is built.
type Profile struct {
	SubjectID string
	Email     string
	Role      string
	Active    bool
}

// RemoteSession is the identity provider's view of a live authenticated
// session.
type RemoteSession struct {
	SubjectID string
	Email     string
}
