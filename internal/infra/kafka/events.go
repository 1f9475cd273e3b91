package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/machoalfa/eclesia-access/internal/core/domain"
	"github.com/machoalfa/eclesia-access/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.SecurityEventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed security event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type eventEnvelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	SubjectID string            `json:"subject_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Payload   any               `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, subjectID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		SubjectID: subjectID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata: map[string]string{
			"service":     p.appCfg.Name,
			"environment": p.appCfg.Env,
		},
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishSessionOpened publishes access.session.opened events.
func (p *EventPublisher) PublishSessionOpened(ctx context.Context, event domain.SessionOpenedEvent) error {
	payload := struct {
		SubjectID string         `json:"subject_id"`
		Email     string         `json:"email,omitempty"`
		Role      string         `json:"role"`
		Bypass    bool           `json:"bypass"`
		OpenedAt  time.Time      `json:"opened_at"`
		ExpiresAt time.Time      `json:"expires_at"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		SubjectID: event.SubjectID,
		Email:     event.Email,
		Role:      event.Role,
		Bypass:    event.Bypass,
		OpenedAt:  event.OpenedAt.UTC(),
		ExpiresAt: event.ExpiresAt.UTC(),
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, "access.session.opened", event.SubjectID, event.OpenedAt, payload)
}

// PublishSessionClosed publishes access.session.closed events.
func (p *EventPublisher) PublishSessionClosed(ctx context.Context, event domain.SessionClosedEvent) error {
	payload := struct {
		SubjectID string         `json:"subject_id"`
		Reason    string         `json:"reason,omitempty"`
		ClosedAt  time.Time      `json:"closed_at"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		SubjectID: event.SubjectID,
		Reason:    event.Reason,
		ClosedAt:  event.ClosedAt.UTC(),
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, "access.session.closed", event.SubjectID, event.ClosedAt, payload)
}

// PublishActionDenied publishes access.action.denied events.
func (p *EventPublisher) PublishActionDenied(ctx context.Context, event domain.ActionDeniedEvent) error {
	payload := struct {
		SubjectID string         `json:"subject_id"`
		Action    string         `json:"action"`
		Resource  string         `json:"resource,omitempty"`
		Reason    string         `json:"reason"`
		DeniedAt  time.Time      `json:"denied_at"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		SubjectID: event.SubjectID,
		Action:    event.Action,
		Resource:  event.Resource,
		Reason:    event.Reason,
		DeniedAt:  event.DeniedAt.UTC(),
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, "access.action.denied", event.SubjectID, event.DeniedAt, payload)
}

// PublishSuspiciousSubjectBlocked publishes access.subject.blocked events.
func (p *EventPublisher) PublishSuspiciousSubjectBlocked(ctx context.Context, event domain.SuspiciousSubjectBlockedEvent) error {
	payload := struct {
		SubjectID string         `json:"subject_id"`
		Reason    string         `json:"reason"`
		BlockedAt time.Time      `json:"blocked_at"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		SubjectID: event.SubjectID,
		Reason:    event.Reason,
		BlockedAt: event.BlockedAt.UTC(),
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, "access.subject.blocked", event.SubjectID, event.BlockedAt, payload)
}
