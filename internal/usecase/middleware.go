package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/machoalfa/eclesia-access/internal/core/domain"
	"github.com/machoalfa/eclesia-access/internal/infra/config"
	"github.com/machoalfa/eclesia-access/internal/infra/telemetry"
)

// ErrActionDenied is returned by ExecuteSecureAction when validation fails.
// The wrapped message carries the denial reason.
var ErrActionDenied = errors.New("action denied")

const reasonCriticalPolicy = "critical action denied by policy"

// criticalActionNames is the fixed set of action names subject to the extra
// role, time-of-day, and rate gates. Matching is by substring, so
// "delete-visitor-batch" is still critical.
var criticalActionNames = []string{
	"delete-user",
	"delete-visitor",
	"mass-delete",
	"backup-restore",
	"change-permissions",
	"delete-all-data",
	"export-sensitive-data",
	"change-admin-settings",
}

// SecurityMiddleware wraps arbitrary actions with pre-execution
// authorization, post-execution audit logging, and the critical-action
// policy.
type SecurityMiddleware struct {
	cfg     config.SecuritySettings
	sctx    *SecurityContext
	store   *SessionStore
	audit   *AuditTrail
	logger  *zap.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
}

// NewSecurityMiddleware constructs a SecurityMiddleware. Metrics may be nil.
func NewSecurityMiddleware(
	cfg config.SecuritySettings,
	sctx *SecurityContext,
	store *SessionStore,
	audit *AuditTrail,
	log *zap.Logger,
	metrics *telemetry.Metrics,
) *SecurityMiddleware {
	if log == nil {
		log = zap.NewNop()
	}
	return &SecurityMiddleware{
		cfg:     cfg,
		sctx:    sctx,
		store:   store,
		audit:   audit,
		logger:  log,
		metrics: metrics,
		now:     time.Now,
	}
}

// WithClock overrides the middleware clock for deterministic testing. The
// clock decides the maintenance-window hour, so tests pin it.
func (m *SecurityMiddleware) WithClock(now func() time.Time) *SecurityMiddleware {
	if now != nil {
		m.now = now
	}
	return m
}

// IsCriticalAction reports whether the action name matches the fixed
// critical set.
func IsCriticalAction(action string) bool {
	lowered := strings.ToLower(action)
	for _, name := range criticalActionNames {
		if strings.Contains(lowered, name) {
			return true
		}
	}
	return false
}

// ValidateAction runs the full authorization ladder for an action. The
// result is transient; callers never persist it.
func (m *SecurityMiddleware) ValidateAction(ctx context.Context, action, resource string, required []domain.Permission) domain.ActionValidation {
	validation := m.validateAction(ctx, action, resource, required)
	if m.metrics != nil {
		outcome := "allowed"
		if !validation.Allowed {
			outcome = "denied"
		}
		m.metrics.ActionValidations.WithLabelValues(outcome).Inc()
	}
	return validation
}

func (m *SecurityMiddleware) validateAction(ctx context.Context, action, resource string, required []domain.Permission) domain.ActionValidation {
	session, resident := m.store.Get()
	if !resident {
		return domain.Deny("not authenticated")
	}
	if !session.IsLive(m.now()) {
		// Distinct from unauthenticated so the UI can say "log in again"
		// instead of "you are not allowed".
		return domain.Deny("session expired")
	}

	if len(required) > 0 && !m.sctx.HasAllPermissions(required...) {
		return domain.Deny(reasonInsufficientPermissions, required...)
	}

	if IsCriticalAction(action) {
		if denial := m.checkCriticalGates(ctx, session); denial != "" {
			if m.metrics != nil {
				m.metrics.CriticalDenials.Inc()
			}
			m.logger.Warn("critical action refused",
				zap.String("action", action),
				zap.String("resource", resource),
				zap.String("subject_id", session.SubjectID),
				zap.String("gate", denial),
			)
			return domain.Deny(reasonCriticalPolicy)
		}
	}

	return domain.Allow()
}

// checkCriticalGates applies the three critical-action gates and names the
// first one that fails.
func (m *SecurityMiddleware) checkCriticalGates(ctx context.Context, session domain.Session) string {
	if session.Role != domain.RoleAdmin {
		return "role"
	}

	if m.inMaintenanceWindow(m.now().Hour()) {
		return "maintenance_window"
	}

	count, err := m.recentCriticalActions(ctx, session.SubjectID)
	if err != nil {
		// The limiter cannot be evaluated; refuse rather than risk an
		// unmetered critical action.
		m.logger.Error("critical action rate check failed", zap.Error(err))
		return "rate_check_error"
	}

	limit := m.cfg.CriticalMaxActions
	if limit <= 0 {
		limit = 5
	}
	if count >= limit {
		return "rate_limit"
	}

	return ""
}

// inMaintenanceWindow reports whether the wall-clock hour falls inside the
// configured window, endpoints inclusive. A window that wraps midnight
// (start > end) covers start..23 and 0..end.
func (m *SecurityMiddleware) inMaintenanceWindow(hour int) bool {
	start, end := m.cfg.MaintenanceStartHour, m.cfg.MaintenanceEndHour
	if start == end {
		return hour == start
	}
	if start < end {
		return hour >= start && hour <= end
	}
	return hour >= start || hour <= end
}

// recentCriticalActions counts successful critical-action attempts by the
// subject inside the sliding window. Completion follow-up records are
// excluded so one action counts once. The audit store is capped, so the
// count can only under-report once older records are evicted.
func (m *SecurityMiddleware) recentCriticalActions(ctx context.Context, subjectID string) (int, error) {
	window := m.cfg.CriticalWindow
	if window <= 0 {
		window = time.Hour
	}

	from := m.now().UTC().Add(-window)
	success := true
	records, err := m.audit.Query(ctx, domain.AuditFilter{
		SubjectID: subjectID,
		From:      &from,
		Success:   &success,
	})
	if err != nil {
		return 0, err
	}

	count := 0
	for _, rec := range records {
		if !IsCriticalAction(rec.Action) {
			continue
		}
		if strings.HasSuffix(rec.Action, "_completed") || strings.HasSuffix(rec.Action, "_failed") {
			continue
		}
		count++
	}
	return count, nil
}

// ExecuteSecureAction validates, audits, and runs fn. The attempt record is
// written before fn runs; a denial returns ErrActionDenied and fn is never
// invoked. The outcome is recorded separately as "<action>_completed" or
// "<action>_failed" so the log answers both "was this attempted" and "did it
// succeed" without mutating the first record.
func (m *SecurityMiddleware) ExecuteSecureAction(
	ctx context.Context,
	action, resource string,
	required []domain.Permission,
	fn func(context.Context) error,
	details map[string]any,
) error {
	validation := m.ValidateAction(ctx, action, resource, required)

	session, _ := m.store.Get()
	entry := AuditEntry{
		SubjectID:    session.SubjectID,
		SubjectEmail: session.Email,
		Action:       action,
		Resource:     resource,
		Details:      details,
		Success:      validation.Allowed,
	}
	if !validation.Allowed {
		entry.ErrorMessage = validation.Reason
	}
	m.audit.Record(ctx, entry)

	if !validation.Allowed {
		m.audit.PublishActionDenied(ctx, session.SubjectID, action, resource, validation.Reason)
		return fmt.Errorf("%w: %s", ErrActionDenied, validation.Reason)
	}

	if err := fn(ctx); err != nil {
		m.audit.Record(ctx, AuditEntry{
			SubjectID:    session.SubjectID,
			SubjectEmail: session.Email,
			Action:       action + "_failed",
			Resource:     resource,
			Details:      details,
			Success:      false,
			ErrorMessage: err.Error(),
		})
		return err
	}

	m.audit.Record(ctx, AuditEntry{
		SubjectID:    session.SubjectID,
		SubjectEmail: session.Email,
		Action:       action + "_completed",
		Resource:     resource,
		Details:      details,
		Success:      true,
	})
	return nil
}

// Secure returns fn wrapped with ExecuteSecureAction, preserving the original
// behaviour of the decorator in the source system as an explicit higher-order
// function.
func (m *SecurityMiddleware) Secure(action, resource string, required []domain.Permission, fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return m.ExecuteSecureAction(ctx, action, resource, required, fn, nil)
	}
}
