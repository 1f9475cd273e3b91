package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/machoalfa/eclesia-access/internal/core/domain"
	"github.com/machoalfa/eclesia-access/internal/infra/security"
)

// ErrBadCredentials is returned by the local provider when the identifier or
// secret does not match.
var ErrBadCredentials = errors.New("invalid email or password")

// Credential is one account the local provider can verify.
type Credential struct {
	SubjectID    string
	Email        string
	PasswordHash string
}

// LocalProvider is an in-process identity provider for development and
// tests. Passwords are verified against Argon2id hashes; like the hosted
// client it tracks at most one signed-in subject.
type LocalProvider struct {
	mu          sync.Mutex
	credentials map[string]Credential
	current     *domain.RemoteSession
}

// NewLocalProvider constructs a provider with no accounts.
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{credentials: make(map[string]Credential)}
}

// Register adds an account, hashing the plaintext password.
func (p *LocalProvider) Register(subjectID, email, password string) error {
	hash, err := security.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.credentials[email] = Credential{SubjectID: subjectID, Email: email, PasswordHash: hash}
	return nil
}

// SignIn verifies the credential and opens the provider-side session.
func (p *LocalProvider) SignIn(_ context.Context, identifier, secret string) (*domain.RemoteSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cred, ok := p.credentials[identifier]
	if !ok {
		return nil, ErrBadCredentials
	}

	match, err := security.VerifyPassword(secret, cred.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !match {
		return nil, ErrBadCredentials
	}

	session := domain.RemoteSession{SubjectID: cred.SubjectID, Email: cred.Email}
	p.current = &session
	return &session, nil
}

// CurrentSession returns the signed-in subject, if any.
func (p *LocalProvider) CurrentSession(context.Context) (*domain.RemoteSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil, nil
	}
	session := *p.current
	return &session, nil
}

// SignOut closes the provider-side session.
func (p *LocalProvider) SignOut(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = nil
	return nil
}
