package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap/zaptest"

	"github.com/machoalfa/eclesia-access/internal/core/domain"
	"github.com/machoalfa/eclesia-access/internal/infra/config"
)

type fakeAsyncProducer struct {
	input  chan *sarama.ProducerMessage
	errors chan *sarama.ProducerError
}

func newFakeAsyncProducer() *fakeAsyncProducer {
	return &fakeAsyncProducer{
		input:  make(chan *sarama.ProducerMessage, 1),
		errors: make(chan *sarama.ProducerError, 1),
	}
}

func (f *fakeAsyncProducer) AsyncClose() {}

func (f *fakeAsyncProducer) Close() error { return nil }

func (f *fakeAsyncProducer) Input() chan<- *sarama.ProducerMessage { return f.input }

func (f *fakeAsyncProducer) Successes() <-chan *sarama.ProducerMessage { return nil }

func (f *fakeAsyncProducer) Errors() <-chan *sarama.ProducerError { return f.errors }

func (f *fakeAsyncProducer) IsTransactional() bool { return false }

func (f *fakeAsyncProducer) BeginTxn() error { return nil }

func (f *fakeAsyncProducer) CommitTxn() error { return nil }

func (f *fakeAsyncProducer) AbortTxn() error { return nil }

func (f *fakeAsyncProducer) AddOffsetsToTxn(offsets map[string][]*sarama.PartitionOffsetMetadata, groupID string) error {
	return nil
}

func (f *fakeAsyncProducer) AddMessageToTxn(msg *sarama.ConsumerMessage, groupID string, metadata *string) error {
	return nil
}

func (f *fakeAsyncProducer) TxnStatus() sarama.ProducerTxnStatusFlag {
	return sarama.ProducerTxnStatusFlag(0)
}

func newTestPublisher(t *testing.T) (*EventPublisher, *fakeAsyncProducer) {
	t.Helper()

	asyncProducer := newFakeAsyncProducer()
	producer := &Producer{
		producer: asyncProducer,
		logger:   zaptest.NewLogger(t),
		cfg: config.KafkaSettings{
			TopicPrefix: "access",
		},
		errChan: make(chan error, 1),
		done:    make(chan struct{}),
	}

	publisher := NewEventPublisher(producer, config.AppSettings{
		Name: "eclesia-access",
		Env:  "test",
	}, zaptest.NewLogger(t))

	return publisher, asyncProducer
}

func receiveEnvelope(t *testing.T, asyncProducer *fakeAsyncProducer, wantTopic string) map[string]any {
	t.Helper()

	select {
	case msg := <-asyncProducer.input:
		if msg.Topic != wantTopic {
			t.Fatalf("unexpected topic: %s", msg.Topic)
		}

		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}

		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}
		return envelope
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message on async producer input channel")
		return nil
	}
}

func TestPublishSessionOpened(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	openedAt := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	event := domain.SessionOpenedEvent{
		EventID:   "event-123",
		SubjectID: "subj-1",
		Email:     "maria@example.org",
		Role:      "pastor",
		Bypass:    false,
		OpenedAt:  openedAt,
		ExpiresAt: openedAt.Add(8 * time.Hour),
		Metadata:  map[string]any{"source": "unit-test"},
	}

	if err := publisher.PublishSessionOpened(context.Background(), event); err != nil {
		t.Fatalf("PublishSessionOpened returned error: %v", err)
	}

	envelope := receiveEnvelope(t, asyncProducer, "access.session.opened")

	if got := envelope["event_type"]; got != "access.session.opened" {
		t.Fatalf("unexpected event_type: %v", got)
	}
	if got := envelope["event_id"]; got != "event-123" {
		t.Fatalf("unexpected event_id: %v", got)
	}
	if got := envelope["subject_id"]; got != event.SubjectID {
		t.Fatalf("unexpected subject_id: %v", got)
	}

	timestamp, ok := envelope["timestamp"].(string)
	if !ok {
		t.Fatalf("timestamp not a string: %T", envelope["timestamp"])
	}
	if timestamp != openedAt.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected timestamp: %s", timestamp)
	}

	payload, ok := envelope["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload not a map: %T", envelope["payload"])
	}
	if got := payload["role"]; got != "pastor" {
		t.Fatalf("unexpected role: %v", got)
	}
	if got := payload["bypass"]; got != false {
		t.Fatalf("unexpected bypass: %v", got)
	}
	if got := payload["email"]; got != event.Email {
		t.Fatalf("unexpected email: %v", got)
	}

	metadata, ok := payload["metadata"].(map[string]any)
	if !ok {
		t.Fatalf("metadata not a map: %T", payload["metadata"])
	}
	if metadata["source"] != "unit-test" {
		t.Fatalf("metadata did not round-trip: %v", metadata)
	}

	envelopeMetadata, ok := envelope["metadata"].(map[string]any)
	if !ok {
		t.Fatalf("envelope metadata not a map: %T", envelope["metadata"])
	}
	if envelopeMetadata["service"] != "eclesia-access" {
		t.Fatalf("unexpected metadata service: %v", envelopeMetadata["service"])
	}
	if envelopeMetadata["environment"] != "test" {
		t.Fatalf("unexpected metadata environment: %v", envelopeMetadata["environment"])
	}
}

func TestPublishSessionClosed(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	closedAt := time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)
	event := domain.SessionClosedEvent{
		EventID:   "event-456",
		SubjectID: "subj-1",
		Reason:    "logout",
		ClosedAt:  closedAt,
	}

	if err := publisher.PublishSessionClosed(context.Background(), event); err != nil {
		t.Fatalf("PublishSessionClosed returned error: %v", err)
	}

	envelope := receiveEnvelope(t, asyncProducer, "access.session.closed")

	if got := envelope["event_type"]; got != "access.session.closed" {
		t.Fatalf("unexpected event_type: %v", got)
	}

	payload, ok := envelope["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload not a map: %T", envelope["payload"])
	}
	if got := payload["reason"]; got != "logout" {
		t.Fatalf("unexpected reason: %v", got)
	}
	closedAtValue, ok := payload["closed_at"].(string)
	if !ok {
		t.Fatalf("closed_at not a string: %T", payload["closed_at"])
	}
	if closedAtValue != closedAt.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected closed_at: %s", closedAtValue)
	}
}

func TestPublishActionDenied(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	deniedAt := time.Date(2025, 3, 10, 23, 15, 0, 0, time.UTC)
	event := domain.ActionDeniedEvent{
		EventID:   "event-789",
		SubjectID: "subj-1",
		Action:    "delete-visitor",
		Resource:  "visitors",
		Reason:    "critical action denied by policy",
		DeniedAt:  deniedAt,
	}

	if err := publisher.PublishActionDenied(context.Background(), event); err != nil {
		t.Fatalf("PublishActionDenied returned error: %v", err)
	}

	envelope := receiveEnvelope(t, asyncProducer, "access.action.denied")

	payload, ok := envelope["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload not a map: %T", envelope["payload"])
	}
	if got := payload["action"]; got != "delete-visitor" {
		t.Fatalf("unexpected action: %v", got)
	}
	if got := payload["resource"]; got != "visitors" {
		t.Fatalf("unexpected resource: %v", got)
	}
	if got := payload["reason"]; got != event.Reason {
		t.Fatalf("unexpected reason: %v", got)
	}
}

func TestPublishSuspiciousSubjectBlocked(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	blockedAt := time.Date(2025, 3, 10, 12, 30, 0, 0, time.UTC)
	event := domain.SuspiciousSubjectBlockedEvent{
		EventID:   "event-999",
		SubjectID: "subj-9",
		Reason:    "5 failed login attempts in the last 1h0m0s",
		BlockedAt: blockedAt,
	}

	if err := publisher.PublishSuspiciousSubjectBlocked(context.Background(), event); err != nil {
		t.Fatalf("PublishSuspiciousSubjectBlocked returned error: %v", err)
	}

	envelope := receiveEnvelope(t, asyncProducer, "access.subject.blocked")

	if got := envelope["event_type"]; got != "access.subject.blocked" {
		t.Fatalf("unexpected event_type: %v", got)
	}

	payload, ok := envelope["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload not a map: %T", envelope["payload"])
	}
	if got := payload["reason"]; got != event.Reason {
		t.Fatalf("unexpected reason: %v", got)
	}
}

func TestTopicNamePrefixing(t *testing.T) {
	producer := &Producer{cfg: config.KafkaSettings{TopicPrefix: "access"}}

	if got := producer.TopicName("access.session.opened"); got != "access.session.opened" {
		t.Fatalf("already-prefixed topic rewritten: %s", got)
	}
	if got := producer.TopicName("session.opened"); got != "access.session.opened" {
		t.Fatalf("unexpected topic: %s", got)
	}

	bare := &Producer{cfg: config.KafkaSettings{}}
	if got := bare.TopicName("session.opened"); got != "session.opened" {
		t.Fatalf("unexpected topic without prefix: %s", got)
	}
}
