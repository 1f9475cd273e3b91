package port

import (
	"context"

	"github.com/machoalfa/eclesia-access/internal/core/domain"
)

// AuditStore persists audit records. Implementations cap retention (the
// in-memory default keeps the 1000 most recent records, oldest evicted first);
// queries only see what is still retained, which callers such as the
// critical-action rate limiter must tolerate.
type AuditStore interface {
	Append(ctx context.Context, rec domain.AuditRecord) error
	// Query returns matching records newest first, honouring filter.Limit
	// when positive.
	Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, error)
}
