package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/machoalfa/eclesia-access/internal/core/domain"
)

var (
	// ErrInvalidSessionToken indicates a malformed token or failed signature check.
	ErrInvalidSessionToken = errors.New("invalid session token")
	// ErrExpiredSessionToken indicates the token outlived its expiry claim.
	ErrExpiredSessionToken = errors.New("session token expired")
)

// SessionTokenClaims binds a bearer token to the local session.
type SessionTokenClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// SessionTokenManager issues and verifies the HMAC-signed bearer tokens the
// HTTP layer hands out for the single local session. The token is a
// transport detail only: authorization always re-checks the session store.
type SessionTokenManager struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewSessionTokenManager constructs a manager. The secret must be non-empty.
func NewSessionTokenManager(secret, issuer string) (*SessionTokenManager, error) {
	if secret == "" {
		return nil, fmt.Errorf("session token secret is required")
	}
	return &SessionTokenManager{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// WithClock overrides the manager clock for deterministic testing.
func (m *SessionTokenManager) WithClock(now func() time.Time) *SessionTokenManager {
	if now != nil {
		m.now = now
	}
	return m
}

// Issue signs a token whose lifetime matches the session expiry.
func (m *SessionTokenManager) Issue(session domain.Session) (string, error) {
	now := m.now().UTC()
	claims := SessionTokenClaims{
		Email: session.Email,
		Role:  string(session.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.SubjectID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature, issuer, and expiry, returning the claims.
func (m *SessionTokenManager) Parse(token string) (*SessionTokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidSessionToken
	}

	claims := &SessionTokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredSessionToken
		}
		return nil, ErrInvalidSessionToken
	}

	if parsed == nil || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidSessionToken
	}

	return claims, nil
}
