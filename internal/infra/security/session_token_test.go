package security

import (
	"errors"
	"testing"
	"time"

	"github.com/machoalfa/eclesia-access/internal/core/domain"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func tokenSession(now time.Time) domain.Session {
	return domain.Session{
		SubjectID: "subj-1",
		Email:     "maria@example.org",
		Role:      domain.RolePastor,
		CreatedAt: now,
		ExpiresAt: now.Add(8 * time.Hour),
	}
}

func TestSessionTokenRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	mgr, err := NewSessionTokenManager("test-secret", "eclesia-access")
	if err != nil {
		t.Fatalf("NewSessionTokenManager: %v", err)
	}
	mgr = mgr.WithClock(fixedClock(now))

	token, err := mgr.Issue(tokenSession(now))
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	claims, err := mgr.Parse(token)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if claims.Subject != "subj-1" {
		t.Fatalf("Subject = %q", claims.Subject)
	}
	if claims.Email != "maria@example.org" || claims.Role != "pastor" {
		t.Fatalf("claims = %+v", claims)
	}
	if !claims.ExpiresAt.Time.Equal(now.Add(8 * time.Hour)) {
		t.Fatalf("ExpiresAt = %v", claims.ExpiresAt.Time)
	}
}

func TestSessionTokenExpired(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	mgr, err := NewSessionTokenManager("test-secret", "eclesia-access")
	if err != nil {
		t.Fatalf("NewSessionTokenManager: %v", err)
	}
	mgr = mgr.WithClock(fixedClock(now))

	token, err := mgr.Issue(tokenSession(now))
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	mgr = mgr.WithClock(fixedClock(now.Add(9 * time.Hour)))
	if _, err := mgr.Parse(token); !errors.Is(err, ErrExpiredSessionToken) {
		t.Fatalf("expected ErrExpiredSessionToken, got %v", err)
	}
}

func TestSessionTokenWrongSecret(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	issuerMgr, err := NewSessionTokenManager("secret-a", "eclesia-access")
	if err != nil {
		t.Fatalf("NewSessionTokenManager: %v", err)
	}
	issuerMgr = issuerMgr.WithClock(fixedClock(now))

	token, err := issuerMgr.Issue(tokenSession(now))
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	verifier, err := NewSessionTokenManager("secret-b", "eclesia-access")
	if err != nil {
		t.Fatalf("NewSessionTokenManager: %v", err)
	}
	verifier = verifier.WithClock(fixedClock(now))

	if _, err := verifier.Parse(token); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected ErrInvalidSessionToken, got %v", err)
	}
}

func TestSessionTokenWrongIssuer(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	mgr, err := NewSessionTokenManager("test-secret", "other-service")
	if err != nil {
		t.Fatalf("NewSessionTokenManager: %v", err)
	}
	mgr = mgr.WithClock(fixedClock(now))

	token, err := mgr.Issue(tokenSession(now))
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	verifier, err := NewSessionTokenManager("test-secret", "eclesia-access")
	if err != nil {
		t.Fatalf("NewSessionTokenManager: %v", err)
	}
	verifier = verifier.WithClock(fixedClock(now))

	if _, err := verifier.Parse(token); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected ErrInvalidSessionToken, got %v", err)
	}
}

func TestSessionTokenEmptySubject(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	mgr, err := NewSessionTokenManager("test-secret", "eclesia-access")
	if err != nil {
		t.Fatalf("NewSessionTokenManager: %v", err)
	}
	mgr = mgr.WithClock(fixedClock(now))

	session := tokenSession(now)
	session.SubjectID = ""
	token, err := mgr.Issue(session)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if _, err := mgr.Parse(token); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected ErrInvalidSessionToken for empty subject, got %v", err)
	}
}

func TestSessionTokenGarbageInput(t *testing.T) {
	mgr, err := NewSessionTokenManager("test-secret", "eclesia-access")
	if err != nil {
		t.Fatalf("NewSessionTokenManager: %v", err)
	}

	for _, token := range []string{"", "   ", "not.a.token"} {
		if _, err := mgr.Parse(token); !errors.Is(err, ErrInvalidSessionToken) {
			t.Fatalf("token %q: expected ErrInvalidSessionToken, got %v", token, err)
		}
	}
}

func TestNewSessionTokenManagerRequiresSecret(t *testing.T) {
	if _, err := NewSessionTokenManager("", "eclesia-access"); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
