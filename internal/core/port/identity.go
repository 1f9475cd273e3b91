package port

import (
	"context"

	"github.com/machoalfa/eclesia-access/internal/core/domain"
)

// IdentityProvider abstracts the hosted authentication backend. Credential
// verification is fully delegated; the core never sees password hashes from
// this boundary.
type IdentityProvider interface {
	// SignIn verifies credentials and opens a remote session.
	SignIn(ctx context.Context, identifier, secret string) (*domain.RemoteSession, error)
	// CurrentSession returns the live remote session, or (nil, nil) when the
	// provider reports none.
	CurrentSession(ctx context.Context) (*domain.RemoteSession, error)
	// SignOut revokes the remote session. Best-effort; callers must not let a
	// failure here block local cleanup.
	SignOut(ctx context.Context) error
}

// ProfileStore resolves the authorization record for a subject id returned by
// the identity provider. Missing profiles surface repository.ErrNotFound.
type ProfileStore interface {
	GetProfile(ctx context.Context, subjectID string) (*domain.Profile, error)
}
