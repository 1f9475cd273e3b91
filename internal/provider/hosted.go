package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/machoalfa/eclesia-access/internal/core/domain"
	"github.com/machoalfa/eclesia-access/internal/infra/config"
)

// HostedProvider talks to the hosted backend's auth REST API. It holds the
// access token for the single remote session this process may have, matching
// the one-slot local session model.
type HostedProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client

	mu    sync.Mutex
	token string
}

// NewHostedProvider constructs a client for the hosted auth API.
func NewHostedProvider(cfg config.ProviderSettings) *HostedProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HostedProvider{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type hostedSignInResponse struct {
	AccessToken string `json:"access_token"`
	User        struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type hostedUserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type hostedErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"msg"`
}

// SignIn verifies credentials with the password grant and retains the
// returned access token.
func (p *HostedProvider) SignIn(ctx context.Context, identifier, secret string) (*domain.RemoteSession, error) {
	body, err := json.Marshal(map[string]string{"email": identifier, "password": secret})
	if err != nil {
		return nil, fmt.Errorf("encode sign-in payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/auth/v1/token?grant_type=password", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build sign-in request: %w", err)
	}
	p.decorate(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sign-in request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sign-in rejected: %s", readAPIError(resp))
	}

	var payload hostedSignInResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode sign-in response: %w", err)
	}
	if payload.AccessToken == "" || payload.User.ID == "" {
		return nil, fmt.Errorf("sign-in response missing token or subject")
	}

	p.mu.Lock()
	p.token = payload.AccessToken
	p.mu.Unlock()

	return &domain.RemoteSession{SubjectID: payload.User.ID, Email: payload.User.Email}, nil
}

// CurrentSession introspects the retained token. A missing or rejected token
// reads as no remote session.
func (p *HostedProvider) CurrentSession(ctx context.Context) (*domain.RemoteSession, error) {
	p.mu.Lock()
	token := p.token
	p.mu.Unlock()
	if token == "" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("build introspection request: %w", err)
	}
	p.decorate(req)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("introspection request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		p.mu.Lock()
		p.token = ""
		p.mu.Unlock()
		return nil, nil
	default:
		return nil, fmt.Errorf("introspection failed: %s", readAPIError(resp))
	}

	var payload hostedUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode introspection response: %w", err)
	}
	if payload.ID == "" {
		return nil, nil
	}

	return &domain.RemoteSession{SubjectID: payload.ID, Email: payload.Email}, nil
}

// SignOut revokes the remote session. The local token clears even when the
// remote call fails.
func (p *HostedProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	token := p.token
	p.token = ""
	p.mu.Unlock()
	if token == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/auth/v1/logout", nil)
	if err != nil {
		return fmt.Errorf("build sign-out request: %w", err)
	}
	p.decorate(req)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("sign-out request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode != http.StatusUnauthorized {
		return fmt.Errorf("sign-out failed: %s", readAPIError(resp))
	}
	return nil
}

func (p *HostedProvider) decorate(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("apikey", p.apiKey)
	}
}

func readAPIError(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(body) == 0 {
		return resp.Status
	}

	var payload hostedErrorResponse
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.ErrorDescription != "":
			return payload.ErrorDescription
		case payload.Message != "":
			return payload.Message
		case payload.Error != "":
			return payload.Error
		}
	}
	return resp.Status
}
