package domain

import "time"

// SessionOpenedEvent represents the payload for access.session.opened messages.
type SessionOpenedEvent struct {
	EventID   string
	SubjectID string
	Email     string
	Role      string
	Bypass    bool
	OpenedAt  time.Time
	ExpiresAt time.Time
	Metadata  map[string]any
}

// SessionClosedEvent represents the payload for access.session.closed messages.
type SessionClosedEvent struct {
	EventID   string
	SubjectID string
	Reason    string
	ClosedAt  time.Time
	Metadata  map[string]any
}

// ActionDeniedEvent represents the payload for access.action.denied messages.
type ActionDeniedEvent struct {
	EventID   string
	SubjectID string
	Action    string
	Resource  string
	Reason    string
	DeniedAt  time.Time
	Metadata  map[string]any
}

// SuspiciousSubjectBlockedEvent represents the payload for
// access.subject.blocked messages. Emitting the event is the whole of the
// current block behaviour; no enforcement is wired to it yet.
type SuspiciousSubjectBlockedEvent struct {
	EventID   string
	SubjectID string
	Reason    string
	BlockedAt time.Time
	Metadata  map[string]any
}
