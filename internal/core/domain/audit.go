package domain

import (
	"strings"
	"time"
)

// AuditRecord is an immutable entry describing one attempted or completed
// action. Records are created by the audit trail and never mutated.
type AuditRecord struct {
	ID           string
	SubjectID    string
	SubjectEmail string
	Action       string
	Resource     string
	Details      map[string]any
	ClientIP     string
	UserAgent    string
	CreatedAt    time.Time
	Success      bool
	ErrorMessage string
}

// AuditFilter narrows an audit query. Zero-valued fields do not filter.
type AuditFilter struct {
	SubjectID      string
	ActionContains string
	From           *time.Time
	To             *time.Time
	Success        *bool
	Limit          int
}

// Matches reports whether the record satisfies every set filter field.
func (f AuditFilter) Matches(rec AuditRecord) bool {
	if f.SubjectID != "" && rec.SubjectID != f.SubjectID {
		return false
	}
	if f.ActionContains != "" && !strings.Contains(strings.ToLower(rec.Action), strings.ToLower(f.ActionContains)) {
		return false
	}
	if f.From != nil && rec.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && rec.CreatedAt.After(*f.To) {
		return false
	}
	if f.Success != nil && rec.Success != *f.Success {
		return false
	}
	return true
}

// SuspiciousActivityReport is the advisory result of the anomaly heuristic.
// Nothing enforces it automatically; it exists for admin review.
type SuspiciousActivityReport struct {
	SubjectID   string
	Flagged     bool
	Reasons     []string
	WindowStart time.Time
	WindowEnd   time.Time
}
