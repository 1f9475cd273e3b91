package memory

import (
	"context"
	"sync"

	"github.com/machoalfa/eclesia-access/internal/core/domain"
)

// DefaultMaxRecords is the retention cap when none is configured.
const DefaultMaxRecords = 1000

// AuditLog is the capped in-memory audit store. Append and cap enforcement
// happen under one lock so the retention invariant holds even with
// concurrent writers. It is the default store; durable backends implement
// the same interface.
type AuditLog struct {
	mu      sync.RWMutex
	records []domain.AuditRecord
	max     int
}

// NewAuditLog constructs an audit log retaining at most max records. Values
// below one fall back to DefaultMaxRecords.
func NewAuditLog(max int) *AuditLog {
	if max < 1 {
		max = DefaultMaxRecords
	}
	return &AuditLog{max: max}
}

// Append stores the record, evicting the oldest once the cap is exceeded.
func (l *AuditLog) Append(_ context.Context, rec domain.AuditRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, rec)
	if overflow := len(l.records) - l.max; overflow > 0 {
		l.records = append(l.records[:0:0], l.records[overflow:]...)
	}
	return nil
}

// Query returns matching records newest first. filter.Limit, when positive,
// caps the result length.
func (l *AuditLog) Query(_ context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.AuditRecord
	for i := len(l.records) - 1; i >= 0; i-- {
		rec := l.records[i]
		if !filter.Matches(rec) {
			continue
		}
		out = append(out, rec)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Len reports how many records are currently retained.
func (l *AuditLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
