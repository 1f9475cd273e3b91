package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/machoalfa/eclesia-access/internal/core/domain"
	"github.com/machoalfa/eclesia-access/internal/infra/config"
	"github.com/machoalfa/eclesia-access/internal/repository"
)

// stubProvider is a hand-rolled identity provider double. Behaviour is set
// per test through the function fields; call counts are tracked for
// interaction assertions.
type stubProvider struct {
	mu sync.Mutex

	signInFn  func(identifier, secret string) (*domain.RemoteSession, error)
	currentFn func() (*domain.RemoteSession, error)
	signOutFn func() error

	signInCalls  int
	currentCalls int
	signOutCalls int
}

func (p *stubProvider) SignIn(_ context.Context, identifier, secret string) (*domain.RemoteSession, error) {
	p.mu.Lock()
	p.signInCalls++
	fn := p.signInFn
	p.mu.Unlock()

	if fn == nil {
		return nil, errors.New("unexpected call: SignIn")
	}
	return fn(identifier, secret)
}

func (p *stubProvider) CurrentSession(context.Context) (*domain.RemoteSession, error) {
	p.mu.Lock()
	p.currentCalls++
	fn := p.currentFn
	p.mu.Unlock()

	if fn == nil {
		return nil, errors.New("unexpected call: CurrentSession")
	}
	return fn()
}

func (p *stubProvider) SignOut(context.Context) error {
	p.mu.Lock()
	p.signOutCalls++
	fn := p.signOutFn
	p.mu.Unlock()

	if fn == nil {
		return nil
	}
	return fn()
}

// stubProfiles serves profiles from a map keyed by subject ID.
type stubProfiles struct {
	profiles map[string]domain.Profile
	err      error
	getCalls int
}

func (s *stubProfiles) GetProfile(_ context.Context, subjectID string) (*domain.Profile, error) {
	s.getCalls++
	if s.err != nil {
		return nil, s.err
	}
	profile, ok := s.profiles[subjectID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := profile
	return &copied, nil
}

// stubAuditStore is an in-memory port.AuditStore with failure injection.
type stubAuditStore struct {
	mu        sync.Mutex
	records   []domain.AuditRecord
	appendErr error
	queryErr  error
}

func (s *stubAuditStore) Append(_ context.Context, rec domain.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *stubAuditStore) Query(_ context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}

	out := make([]domain.AuditRecord, 0)
	for i := len(s.records) - 1; i >= 0; i-- {
		if !filter.Matches(s.records[i]) {
			continue
		}
		out = append(out, s.records[i])
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *stubAuditStore) snapshot() []domain.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuditRecord(nil), s.records...)
}

func (s *stubAuditStore) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Action)
	}
	return out
}

// spyPublisher counts published security events.
type spyPublisher struct {
	mu             sync.Mutex
	opened         []domain.SessionOpenedEvent
	closed         []domain.SessionClosedEvent
	denied         []domain.ActionDeniedEvent
	blocked        []domain.SuspiciousSubjectBlockedEvent
	publishFailure error
}

func (p *spyPublisher) PublishSessionOpened(_ context.Context, event domain.SessionOpenedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.publishFailure != nil {
		return p.publishFailure
	}
	p.opened = append(p.opened, event)
	return nil
}

func (p *spyPublisher) PublishSessionClosed(_ context.Context, event domain.SessionClosedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.publishFailure != nil {
		return p.publishFailure
	}
	p.closed = append(p.closed, event)
	return nil
}

func (p *spyPublisher) PublishActionDenied(_ context.Context, event domain.ActionDeniedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.publishFailure != nil {
		return p.publishFailure
	}
	p.denied = append(p.denied, event)
	return nil
}

func (p *spyPublisher) PublishSuspiciousSubjectBlocked(_ context.Context, event domain.SuspiciousSubjectBlockedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.publishFailure != nil {
		return p.publishFailure
	}
	p.blocked = append(p.blocked, event)
	return nil
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		App: config.AppSettings{Name: "eclesia-access", Env: "test"},
		Auth: config.AuthSettings{
			SessionTTL: 8 * time.Hour,
			LoginPath:  "/login",
			Bypass: config.BypassSettings{
				Enabled:    true,
				Identifier: "dizimista",
				Secret:     "dizimo2024",
				SubjectID:  "dizimista-local",
				Email:      "dizimista@local",
			},
		},
		Security: config.SecuritySettings{
			CriticalMaxActions:   5,
			CriticalWindow:       time.Hour,
			MaintenanceStartHour: 22,
			MaintenanceEndHour:   6,
		},
		Audit: config.AuditSettings{
			Backend:                   "memory",
			MaxRecords:                1000,
			SuspiciousWindow:          time.Hour,
			FailedLoginThreshold:      5,
			VolumeThreshold:           100,
			PermissionDenialThreshold: 10,
		},
	}
}
