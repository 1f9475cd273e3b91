package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/machoalfa/eclesia-access/internal/core/domain"
	"github.com/machoalfa/eclesia-access/internal/core/port"
	"github.com/machoalfa/eclesia-access/internal/infra/config"
	"github.com/machoalfa/eclesia-access/internal/infra/logger"
	"github.com/machoalfa/eclesia-access/internal/infra/telemetry"
	"github.com/machoalfa/eclesia-access/internal/repository"
)

var (
	// ErrInvalidCredentials indicates the provider rejected the identifier or secret.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrProfileNotFound indicates no authorization record exists for the subject.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrProfileInactive indicates the account was deactivated.
	ErrProfileInactive = errors.New("user deactivated")
	// ErrUnknownRole indicates the profile carries a role outside the closed set.
	ErrUnknownRole = errors.New("unrecognized role")
	// ErrNoSession indicates no local session exists for the operation.
	ErrNoSession = errors.New("no active session")
)

// AuthService coordinates login, logout, renewal, and session reconciliation
// against the external identity provider and profile store.
type AuthService struct {
	cfg      *config.AppConfig
	provider port.IdentityProvider
	profiles port.ProfileStore
	store    *SessionStore
	audit    *AuditTrail
	logger   *zap.Logger
	metrics  *telemetry.Metrics
	now      func() time.Time
}

// NewAuthService constructs an AuthService. Metrics may be nil.
func NewAuthService(
	cfg *config.AppConfig,
	provider port.IdentityProvider,
	profiles port.ProfileStore,
	store *SessionStore,
	audit *AuditTrail,
	log *zap.Logger,
	metrics *telemetry.Metrics,
) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		cfg:      cfg,
		provider: provider,
		profiles: profiles,
		store:    store,
		audit:    audit,
		logger:   log,
		metrics:  metrics,
		now:      time.Now,
	}
}

// WithClock overrides the service clock for deterministic testing.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	if now != nil {
		s.now = now
	}
	return s
}

// Login verifies credentials, loads the caller's authorization record, and
// populates the session store. All failures collapse to an error at this
// boundary; callers distinguish them with errors.Is against the sentinels.
func (s *AuthService) Login(ctx context.Context, identifier, secret string) (*domain.Session, error) {
	if identifier == "" || secret == "" {
		s.countLogin("invalid_credentials")
		return nil, ErrInvalidCredentials
	}

	if s.isBypassCredential(identifier, secret) {
		return s.bypassLogin(ctx)
	}

	remote, err := s.provider.SignIn(ctx, identifier, secret)
	if err != nil {
		s.countLogin("invalid_credentials")
		s.recordLoginFailure(ctx, identifier, err.Error())
		return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, err.Error())
	}

	session, err := s.buildSession(ctx, remote)
	if err != nil {
		// Remote auth succeeded but no usable local authorization record
		// exists. Revoke the remote session rather than leaving it orphaned.
		s.compensatingSignOut(ctx, remote.SubjectID)
		s.recordLoginFailure(ctx, remote.SubjectID, err.Error())
		return nil, err
	}

	s.store.Set(*session)
	s.countLogin("success")
	s.recordLoginSuccess(ctx, *session, false)

	return session, nil
}

// buildSession loads and validates the profile for a remote session and
// derives the local session from it.
func (s *AuthService) buildSession(ctx context.Context, remote *domain.RemoteSession) (*domain.Session, error) {
	profile, err := s.profiles.GetProfile(ctx, remote.SubjectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.countLogin("profile_missing")
			return nil, ErrProfileNotFound
		}
		s.countLogin("internal")
		return nil, fmt.Errorf("load profile: %w", err)
	}

	role, err := domain.ParseRole(profile.Role)
	if err != nil {
		s.countLogin("unknown_role")
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, profile.Role)
	}

	if !profile.Active {
		s.countLogin("profile_inactive")
		return nil, ErrProfileInactive
	}

	now := s.now().UTC()
	session := domain.Session{
		SubjectID:   profile.SubjectID,
		Email:       profile.Email,
		Role:        role,
		Permissions: domain.PermissionsFor(role),
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.Auth.SessionTTL),
	}
	return &session, nil
}

// isBypassCredential matches the fixed provider-independent credential. The
// secret comparison is constant time; the identifier is not a secret.
func (s *AuthService) isBypassCredential(identifier, secret string) bool {
	bypass := s.cfg.Auth.Bypass
	if !bypass.Enabled || identifier != bypass.Identifier {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(bypass.Secret)) == 1
}

// bypassLogin synthesizes a contributor session without contacting the
// provider. This reproduces a hardcoded account from the original system and
// is a known security weakness: keep it isolated here, behind its config
// flag, so hardened deployments can remove it outright.
func (s *AuthService) bypassLogin(ctx context.Context) (*domain.Session, error) {
	bypass := s.cfg.Auth.Bypass
	now := s.now().UTC()

	session := domain.Session{
		SubjectID:   bypass.SubjectID,
		Email:       bypass.Email,
		Role:        domain.RoleDizimista,
		Permissions: domain.PermissionsFor(domain.RoleDizimista),
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.Auth.SessionTTL),
	}

	s.store.Set(session)
	s.countLogin("bypass")
	s.logger.Warn("bypass credential used",
		zap.String("subject_id", session.SubjectID),
		zap.String("email", logger.MaskEmail(session.Email)),
	)
	s.recordLoginSuccess(ctx, session, true)

	return &session, nil
}

// Logout records the event, revokes the remote session best-effort, and
// clears local state. Local state clears even when the remote call fails:
// the local slot is the authoritative gate for this process.
func (s *AuthService) Logout(ctx context.Context) {
	session, ok := s.store.Get()
	if ok {
		s.audit.Record(ctx, AuditEntry{
			SubjectID:    session.SubjectID,
			SubjectEmail: session.Email,
			Action:       actionLogout,
			Resource:     "auth",
			Success:      true,
		})
		s.audit.PublishSessionClosed(ctx, session.SubjectID, "logout")
	}

	if err := s.provider.SignOut(ctx); err != nil {
		s.logger.Warn("remote sign-out failed", zap.Error(err))
	}

	s.store.Clear()
}

// RenewSession extends the local expiry when the provider still reports a
// live remote session and the local session is live. An expired resident
// session reads as absent; reviving it here would resurrect a stale
// role/permission snapshot without re-checking the profile.
func (s *AuthService) RenewSession(ctx context.Context) (bool, error) {
	remote, err := s.provider.CurrentSession(ctx)
	if err != nil {
		return false, fmt.Errorf("introspect remote session: %w", err)
	}
	if remote == nil {
		return false, nil
	}
	if _, ok := s.store.Live(); !ok {
		return false, nil
	}

	return s.store.Extend(s.cfg.Auth.SessionTTL), nil
}

// ValidateSession reconciles local state with the provider. No remote session
// clears the local slot; a remote session without a live local session
// reloads the profile and repopulates the store, so an expired resident
// session is rebuilt rather than trusted.
func (s *AuthService) ValidateSession(ctx context.Context) (bool, error) {
	remote, err := s.provider.CurrentSession(ctx)
	if err != nil {
		return false, fmt.Errorf("introspect remote session: %w", err)
	}

	if remote == nil {
		if session, ok := s.store.Get(); ok {
			s.audit.PublishSessionClosed(ctx, session.SubjectID, "remote session gone")
		}
		s.store.Clear()
		return false, nil
	}

	if _, ok := s.store.Live(); !ok {
		session, err := s.buildSession(ctx, remote)
		if err != nil {
			s.compensatingSignOut(ctx, remote.SubjectID)
			return false, err
		}
		s.store.Set(*session)
	}

	return s.store.IsLive(), nil
}

// compensatingSignOut revokes a remote session that has no matching local
// authorization record. Failures are logged; there is nothing else to do.
func (s *AuthService) compensatingSignOut(ctx context.Context, subjectID string) {
	if err := s.provider.SignOut(ctx); err != nil {
		s.logger.Error("compensating sign-out failed",
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
	}
}

func (s *AuthService) recordLoginSuccess(ctx context.Context, session domain.Session, bypass bool) {
	entry := AuditEntry{
		SubjectID:    session.SubjectID,
		SubjectEmail: session.Email,
		Action:       actionLogin,
		Resource:     "auth",
		Success:      true,
	}
	if bypass {
		entry.Details = map[string]any{"bypass": true}
	}

	meta := ClientMetaFromContext(ctx)
	entry.ClientIP = meta.IP
	entry.UserAgent = meta.UserAgent

	// Audit is best-effort and must not sit on the login path.
	go s.audit.Record(context.WithoutCancel(ctx), entry)
	s.audit.PublishSessionOpened(ctx, session, bypass)
}

func (s *AuthService) recordLoginFailure(ctx context.Context, subjectID, reason string) {
	s.audit.Record(ctx, AuditEntry{
		SubjectID:    subjectID,
		Action:       actionLogin,
		Resource:     "auth",
		Success:      false,
		ErrorMessage: reason,
	})
}

func (s *AuthService) countLogin(result string) {
	if s.metrics != nil {
		s.metrics.LoginAttempts.WithLabelValues(result).Inc()
	}
}
