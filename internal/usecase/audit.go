package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/machoalfa/eclesia-access/internal/core/domain"
	"github.com/machoalfa/eclesia-access/internal/core/port"
	"github.com/machoalfa/eclesia-access/internal/infra/config"
	"github.com/machoalfa/eclesia-access/internal/infra/telemetry"
)

const (
	actionLogin  = "login"
	actionLogout = "logout"

	reasonInsufficientPermissions = "insufficient permissions"
)

// AuditEntry is the caller-facing payload for recording one audit event.
// Client metadata is taken from the entry when set, otherwise from the
// context.
type AuditEntry struct {
	SubjectID    string
	SubjectEmail string
	Action       string
	Resource     string
	Details      map[string]any
	ClientIP     string
	UserAgent    string
	Success      bool
	ErrorMessage string
}

// AuditTrail records, queries, and analyses audit records. Recording is
// best-effort observability: append and publish failures are logged and
// swallowed so they can never fail the action that produced them.
type AuditTrail struct {
	cfg     config.AuditSettings
	store   port.AuditStore
	events  port.SecurityEventPublisher
	logger  *zap.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
}

// NewAuditTrail constructs an AuditTrail. The publisher and metrics may be nil.
func NewAuditTrail(cfg config.AuditSettings, store port.AuditStore, events port.SecurityEventPublisher, logger *zap.Logger, metrics *telemetry.Metrics) *AuditTrail {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditTrail{
		cfg:     cfg,
		store:   store,
		events:  events,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// WithClock overrides the trail clock for deterministic testing.
func (t *AuditTrail) WithClock(now func() time.Time) *AuditTrail {
	if now != nil {
		t.now = now
	}
	return t
}

// Record appends an immutable audit record built from the entry.
func (t *AuditTrail) Record(ctx context.Context, entry AuditEntry) {
	meta := ClientMetaFromContext(ctx)
	if entry.ClientIP == "" {
		entry.ClientIP = meta.IP
	}
	if entry.UserAgent == "" {
		entry.UserAgent = meta.UserAgent
	}

	rec := domain.AuditRecord{
		ID:           uuid.NewString(),
		SubjectID:    entry.SubjectID,
		SubjectEmail: entry.SubjectEmail,
		Action:       entry.Action,
		Resource:     entry.Resource,
		Details:      entry.Details,
		ClientIP:     entry.ClientIP,
		UserAgent:    entry.UserAgent,
		CreatedAt:    t.now().UTC(),
		Success:      entry.Success,
		ErrorMessage: entry.ErrorMessage,
	}

	if err := t.store.Append(ctx, rec); err != nil {
		t.logger.Warn("audit append failed",
			zap.String("action", rec.Action),
			zap.String("subject_id", rec.SubjectID),
			zap.Error(err),
		)
		if t.metrics != nil {
			t.metrics.AuditDropped.Inc()
		}
		return
	}

	if t.metrics != nil {
		t.metrics.AuditAppends.Inc()
	}
}

// Query returns matching records, newest first.
func (t *AuditTrail) Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, error) {
	records, err := t.store.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query audit store: %w", err)
	}
	return records, nil
}

// DetectSuspiciousActivity evaluates the anomaly heuristic for a subject over
// the trailing window. The result is advisory; nothing enforces it.
func (t *AuditTrail) DetectSuspiciousActivity(ctx context.Context, subjectID string) (domain.SuspiciousActivityReport, error) {
	report := domain.SuspiciousActivityReport{SubjectID: subjectID}
	if subjectID == "" {
		return report, fmt.Errorf("subject id is required")
	}

	window := t.cfg.SuspiciousWindow
	if window <= 0 {
		window = time.Hour
	}

	end := t.now().UTC()
	start := end.Add(-window)
	report.WindowStart = start
	report.WindowEnd = end

	records, err := t.store.Query(ctx, domain.AuditFilter{SubjectID: subjectID, From: &start})
	if err != nil {
		return report, fmt.Errorf("query audit store: %w", err)
	}

	failedLogins := 0
	permissionDenials := 0
	for _, rec := range records {
		if rec.Action == actionLogin && !rec.Success {
			failedLogins++
		}
		if !rec.Success && strings.Contains(strings.ToLower(rec.ErrorMessage), reasonInsufficientPermissions) {
			permissionDenials++
		}
	}

	if threshold := t.cfg.FailedLoginThreshold; threshold > 0 && failedLogins >= threshold {
		report.Reasons = append(report.Reasons, fmt.Sprintf("%d failed login attempts in the last %s", failedLogins, window))
	}
	if threshold := t.cfg.VolumeThreshold; threshold > 0 && len(records) >= threshold {
		report.Reasons = append(report.Reasons, "excessive action volume")
	}
	if threshold := t.cfg.PermissionDenialThreshold; threshold > 0 && permissionDenials >= threshold {
		report.Reasons = append(report.Reasons, fmt.Sprintf("%d permission denials in the last %s", permissionDenials, window))
	}

	report.Flagged = len(report.Reasons) > 0
	return report, nil
}

// BlockSuspiciousUser records the decision and publishes an event. It is a
// declared extension point: no enforcement side effect exists yet, callers
// wire their own if a lockout is ever wanted.
func (t *AuditTrail) BlockSuspiciousUser(ctx context.Context, subjectID, reason string) error {
	if subjectID == "" {
		return fmt.Errorf("subject id is required")
	}
	if reason == "" {
		reason = "manual review"
	}

	t.Record(ctx, AuditEntry{
		SubjectID: subjectID,
		Action:    "block_suspicious_user",
		Resource:  "security",
		Details:   map[string]any{"reason": reason},
		Success:   true,
	})
	t.publishSubjectBlocked(ctx, subjectID, reason)
	return nil
}

func (t *AuditTrail) publishSubjectBlocked(ctx context.Context, subjectID, reason string) {
	if t.events == nil {
		return
	}
	event := domain.SuspiciousSubjectBlockedEvent{
		EventID:   uuid.NewString(),
		SubjectID: subjectID,
		Reason:    reason,
		BlockedAt: t.now().UTC(),
	}
	if err := t.events.PublishSuspiciousSubjectBlocked(ctx, event); err != nil {
		t.logger.Warn("publish subject blocked event failed", zap.String("subject_id", subjectID), zap.Error(err))
	}
}

// PublishSessionOpened emits the session-opened event, best-effort.
func (t *AuditTrail) PublishSessionOpened(ctx context.Context, session domain.Session, bypass bool) {
	if t.events == nil {
		return
	}
	event := domain.SessionOpenedEvent{
		EventID:   uuid.NewString(),
		SubjectID: session.SubjectID,
		Email:     session.Email,
		Role:      string(session.Role),
		Bypass:    bypass,
		OpenedAt:  session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
	}
	if err := t.events.PublishSessionOpened(ctx, event); err != nil {
		t.logger.Warn("publish session opened event failed", zap.String("subject_id", session.SubjectID), zap.Error(err))
	}
}

// PublishSessionClosed emits the session-closed event, best-effort.
func (t *AuditTrail) PublishSessionClosed(ctx context.Context, subjectID, reason string) {
	if t.events == nil {
		return
	}
	event := domain.SessionClosedEvent{
		EventID:   uuid.NewString(),
		SubjectID: subjectID,
		Reason:    reason,
		ClosedAt:  t.now().UTC(),
	}
	if err := t.events.PublishSessionClosed(ctx, event); err != nil {
		t.logger.Warn("publish session closed event failed", zap.String("subject_id", subjectID), zap.Error(err))
	}
}

// PublishActionDenied emits the action-denied event, best-effort.
func (t *AuditTrail) PublishActionDenied(ctx context.Context, subjectID, action, resource, reason string) {
	if t.events == nil {
		return
	}
	event := domain.ActionDeniedEvent{
		EventID:   uuid.NewString(),
		SubjectID: subjectID,
		Action:    action,
		Resource:  resource,
		Reason:    reason,
		DeniedAt:  t.now().UTC(),
	}
	if err := t.events.PublishActionDenied(ctx, event); err != nil {
		t.logger.Warn("publish action denied event failed", zap.String("subject_id", subjectID), zap.Error(err))
	}
}
