package port

import (
	"context"

	"github.com/machoalfa/eclesia-access/internal/core/domain"
)

// SecurityEventPublisher publishes security domain events to the message bus.
// Publishing is best-effort observability; failures never fail the action
// that produced the event.
type SecurityEventPublisher interface {
	PublishSessionOpened(ctx context.Context, event domain.SessionOpenedEvent) error
	PublishSessionClosed(ctx context.Context, event domain.SessionClosedEvent) error
	PublishActionDenied(ctx context.Context, event domain.ActionDeniedEvent) error
	PublishSuspiciousSubjectBlocked(ctx context.Context, event domain.SuspiciousSubjectBlockedEvent) error
}
