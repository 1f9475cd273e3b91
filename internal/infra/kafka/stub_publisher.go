package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/machoalfa/eclesia-access/internal/core/domain"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for
// development environments without a broker.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, subjectID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("subject_id", subjectID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishSessionOpened logs access.session.opened events.
func (p *StubPublisher) PublishSessionOpened(_ context.Context, event domain.SessionOpenedEvent) error {
	p.logEvent("access.session.opened", event.SubjectID, event.OpenedAt, map[string]any{
		"role":       event.Role,
		"bypass":     event.Bypass,
		"expires_at": event.ExpiresAt,
	})
	return nil
}

// PublishSessionClosed logs access.session.closed events.
func (p *StubPublisher) PublishSessionClosed(_ context.Context, event domain.SessionClosedEvent) error {
	p.logEvent("access.session.closed", event.SubjectID, event.ClosedAt, map[string]any{
		"reason": event.Reason,
	})
	return nil
}

// PublishActionDenied logs access.action.denied events.
func (p *StubPublisher) PublishActionDenied(_ context.Context, event domain.ActionDeniedEvent) error {
	p.logEvent("access.action.denied", event.SubjectID, event.DeniedAt, map[string]any{
		"action":   event.Action,
		"resource": event.Resource,
		"reason":   event.Reason,
	})
	return nil
}

// PublishSuspiciousSubjectBlocked logs access.subject.blocked events.
func (p *StubPublisher) PublishSuspiciousSubjectBlocked(_ context.Context, event domain.SuspiciousSubjectBlockedEvent) error {
	p.logEvent("access.subject.blocked", event.SubjectID, event.BlockedAt, map[string]any{
		"reason": event.Reason,
	})
	return nil
}
