package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"

	"github.com/machoalfa/eclesia-access/internal/core/domain"
	"github.com/machoalfa/eclesia-access/internal/infra/config"
	"github.com/machoalfa/eclesia-access/internal/infra/security"
	"github.com/machoalfa/eclesia-access/internal/infra/telemetry"
	"github.com/machoalfa/eclesia-access/internal/provider"
	"github.com/machoalfa/eclesia-access/internal/repository/memory"
	"github.com/machoalfa/eclesia-access/internal/usecase"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.AppConfig{
		App: config.AppSettings{Name: "eclesia-access", Env: "test"},
		Auth: config.AuthSettings{
			SessionTTL: 8 * time.Hour,
			LoginPath:  "/login",
		},
		Security: config.SecuritySettings{
			CriticalMaxActions:   5,
			CriticalWindow:       time.Hour,
			MaintenanceStartHour: 22,
			MaintenanceEndHour:   6,
		},
		Audit: config.AuditSettings{
			Backend:              "memory",
			MaxRecords:           1000,
			SuspiciousWindow:     time.Hour,
			FailedLoginThreshold: 5,
			VolumeThreshold:      100,
		},
	}

	log := zaptest.NewLogger(t)
	metrics := telemetry.New(prometheus.NewRegistry())

	identity := provider.NewLocalProvider()
	for _, account := range []struct {
		subjectID, email, password string
	}{
		{"subj-admin", "admin@example.org", "admin-secret"},
		{"subj-pastor", "maria@example.org", "pastor-secret"},
	} {
		if err := identity.Register(account.subjectID, account.email, account.password); err != nil {
			t.Fatalf("Register %s: %v", account.email, err)
		}
	}

	profiles := memory.NewProfileStore()
	profiles.Put(domain.Profile{SubjectID: "subj-admin", Email: "admin@example.org", Role: "admin", Active: true})
	profiles.Put(domain.Profile{SubjectID: "subj-pastor", Email: "maria@example.org", Role: "pastor", Active: true})

	auditStore := memory.NewAuditLog(cfg.Audit.MaxRecords)
	trail := usecase.NewAuditTrail(cfg.Audit, auditStore, nil, log, metrics)

	store := usecase.NewSessionStore()
	authService := usecase.NewAuthService(cfg, identity, profiles, store, trail, log, metrics)
	sctx := usecase.NewSecurityContext(store)
	securityMiddleware := usecase.NewSecurityMiddleware(cfg.Security, sctx, store, trail, log, metrics)
	routeGuard := usecase.NewRouteGuard(authService, sctx, cfg.Auth.LoginPath)

	tokens, err := security.NewSessionTokenManager("test-secret", "eclesia-access")
	if err != nil {
		t.Fatalf("NewSessionTokenManager: %v", err)
	}

	return Register(Dependencies{
		Config:  cfg,
		Logger:  log,
		Metrics: metrics,
		Services: ServiceSet{
			Auth:     authService,
			Trail:    trail,
			Store:    store,
			Security: securityMiddleware,
			Guard:    routeGuard,
		},
		TokenManager: tokens,
	})
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, router *gin.Engine, identifier, secret string) string {
	t.Helper()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"identifier": identifier,
		"secret":     secret,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		SessionToken string `json:"session_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.SessionToken == "" || resp.TokenType != "Bearer" {
		t.Fatalf("unexpected login response: %s", rec.Body.String())
	}
	if resp.ExpiresIn <= 0 {
		t.Fatalf("expires_in = %d", resp.ExpiresIn)
	}
	return resp.SessionToken
}

func TestLoginAndSessionEndpoint(t *testing.T) {
	router := newTestRouter(t)
	token := login(t, router, "maria@example.org", "pastor-secret")

	rec := doJSON(t, router, http.MethodGet, "/api/v1/auth/session", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("session returned %d: %s", rec.Code, rec.Body.String())
	}

	var session struct {
		SubjectID   string   `json:"subject_id"`
		Role        string   `json:"role"`
		Permissions []string `json:"permissions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode session response: %v", err)
	}
	if session.SubjectID != "subj-pastor" || session.Role != "pastor" {
		t.Fatalf("unexpected session: %s", rec.Body.String())
	}
	if len(session.Permissions) == 0 {
		t.Fatal("expected resolved permissions in the session summary")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"identifier": "maria@example.org",
		"secret":     "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSessionEndpointsRequireToken(t *testing.T) {
	router := newTestRouter(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/auth/session"},
		{http.MethodPost, "/api/v1/auth/logout"},
		{http.MethodPost, "/api/v1/auth/renew"},
		{http.MethodGet, "/api/v1/audit"},
		{http.MethodPost, "/api/v1/access/validate-action"},
	} {
		rec := doJSON(t, router, tc.method, tc.path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", tc.method, tc.path, rec.Code)
		}
	}
}

func TestErrorResponsesCarryTraceID(t *testing.T) {
	router := newTestRouter(t)

	send := func(method, path string, body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Trace-ID", "trace-abc-123")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	var payload struct {
		Error   string `json:"error"`
		TraceID string `json:"trace_id"`
	}

	// Rejection from the session gate.
	rec := send(http.MethodGet, "/api/v1/auth/session", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode gate error: %v", err)
	}
	if payload.TraceID != "trace-abc-123" {
		t.Fatalf("gate trace_id = %q", payload.TraceID)
	}

	// Rejection from a handler.
	rec = send(http.MethodPost, "/api/v1/auth/login", []byte(`{`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode handler error: %v", err)
	}
	if payload.TraceID != "trace-abc-123" {
		t.Fatalf("handler trace_id = %q", payload.TraceID)
	}
}

func TestValidateEndpointReconcilesWithoutToken(t *testing.T) {
	router := newTestRouter(t)

	// The endpoint exists for callers whose token has already expired, so
	// it must answer without one.
	rec := doJSON(t, router, http.MethodPost, "/api/v1/auth/validate", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("validate without a token returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Live bool `json:"live"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode validate response: %v", err)
	}
	if resp.Live {
		t.Fatal("validate with no session anywhere should report not live")
	}

	login(t, router, "maria@example.org", "pastor-secret")

	rec = doJSON(t, router, http.MethodPost, "/api/v1/auth/validate", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("validate after login returned %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode validate response: %v", err)
	}
	if !resp.Live {
		t.Fatal("validate should report live while the provider session holds")
	}
}

func TestAuditEndpointRequiresLogsPermission(t *testing.T) {
	router := newTestRouter(t)
	token := login(t, router, "maria@example.org", "pastor-secret")

	rec := doJSON(t, router, http.MethodGet, "/api/v1/audit", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for pastor, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAuditEndpointForAdmin(t *testing.T) {
	router := newTestRouter(t)
	token := login(t, router, "admin@example.org", "admin-secret")

	rec := doJSON(t, router, http.MethodGet, "/api/v1/audit?limit=10", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Records []map[string]any `json:"records"`
		Count   int              `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode audit response: %v", err)
	}
	if resp.Count != len(resp.Records) {
		t.Fatalf("count %d does not match records %d", resp.Count, len(resp.Records))
	}
}

func TestValidateActionEndpoint(t *testing.T) {
	router := newTestRouter(t)
	token := login(t, router, "maria@example.org", "pastor-secret")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/access/validate-action", token, map[string]any{
		"action":               "edit-visitor",
		"resource":             "visitors",
		"required_permissions": []string{"visitors:edit"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("validate-action returned %d: %s", rec.Code, rec.Body.String())
	}

	var verdict struct {
		Allowed bool   `json:"allowed"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &verdict); err != nil {
		t.Fatalf("decode verdict: %v", err)
	}
	if !verdict.Allowed {
		t.Fatalf("expected pastor allowed to edit visitors: %s", rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/access/validate-action", token, map[string]any{
		"action":               "manage-users",
		"resource":             "users",
		"required_permissions": []string{"users:manage"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("validate-action returned %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &verdict); err != nil {
		t.Fatalf("decode verdict: %v", err)
	}
	if verdict.Allowed || verdict.Reason != "insufficient permissions" {
		t.Fatalf("expected denial for users:manage: %s", rec.Body.String())
	}
}

func TestGuardEndpointUnauthenticated(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/access/guard", "", map[string]any{
		"role":      "pastor",
		"return_to": "/visitors?page=2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("guard returned %d: %s", rec.Code, rec.Body.String())
	}

	var decision struct {
		State      string `json:"state"`
		RedirectTo string `json:"redirect_to"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &decision); err != nil {
		t.Fatalf("decode decision: %v", err)
	}
	if decision.State != "unauthenticated" {
		t.Fatalf("state = %q", decision.State)
	}
	if decision.RedirectTo != "/login?return_to=%2Fvisitors%3Fpage%3D2" {
		t.Fatalf("redirect_to = %q", decision.RedirectTo)
	}
}

func TestGuardEndpointAuthorized(t *testing.T) {
	router := newTestRouter(t)
	login(t, router, "maria@example.org", "pastor-secret")

	rec := doJSON(t, router, http.MethodPost, "/api/v1/access/guard", "", map[string]any{
		"role": "pastor",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("guard returned %d: %s", rec.Code, rec.Body.String())
	}

	var decision struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &decision); err != nil {
		t.Fatalf("decode decision: %v", err)
	}
	if decision.State != "authorized" {
		t.Fatalf("state = %q, body = %s", decision.State, rec.Body.String())
	}
}

func TestGuardEndpointRejectsUnknownRole(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/access/guard", "", map[string]any{
		"role": "bishop",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSingleSlotSessionInvalidatesOldToken(t *testing.T) {
	router := newTestRouter(t)

	adminToken := login(t, router, "admin@example.org", "admin-secret")
	login(t, router, "maria@example.org", "pastor-secret")

	rec := doJSON(t, router, http.MethodGet, "/api/v1/auth/session", adminToken, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("token for the displaced session should be rejected, got %d", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz returned %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/readyz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics returned %d", rec.Code)
	}
}
