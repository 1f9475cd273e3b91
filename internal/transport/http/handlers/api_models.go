package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/machoalfa/eclesia-access/internal/core/domain"
	"github.com/machoalfa/eclesia-access/internal/transport/http/middleware"
)

// ErrorResponse is the error payload shared with the middleware gates; one
// definition keeps the two packages from drifting apart.
type ErrorResponse = middleware.ErrorResponse

// NewErrorResponse stamps an error payload with the request's trace ID.
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return middleware.NewErrorResponse(c, errorMsg)
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Secret     string `json:"secret" binding:"required"`
}

// SessionSummary provides a compact view of the active session.
type SessionSummary struct {
	SubjectID   string    `json:"subject_id"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// LoginResponse describes the response returned for a successful login.
type LoginResponse struct {
	SessionToken string         `json:"session_token"`
	TokenType    string         `json:"token_type"`
	ExpiresIn    int            `json:"expires_in"`
	Session      SessionSummary `json:"session"`
}

// RenewResponse reports the outcome of a session renewal.
type RenewResponse struct {
	Renewed   bool       `json:"renewed"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// ValidateResponse reports whether the session survived reconciliation.
type ValidateResponse struct {
	Live bool `json:"live"`
}

// AuditRecordView is the serialized form of an audit record.
type AuditRecordView struct {
	ID           string         `json:"id"`
	SubjectID    string         `json:"subject_id"`
	SubjectEmail string         `json:"subject_email,omitempty"`
	Action       string         `json:"action"`
	Resource     string         `json:"resource,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	ClientIP     string         `json:"client_ip,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// AuditListResponse wraps a page of audit records.
type AuditListResponse struct {
	Records []AuditRecordView `json:"records"`
	Count   int               `json:"count"`
}

// SuspiciousReportResponse serializes the anomaly heuristics verdict.
type SuspiciousReportResponse struct {
	SubjectID string    `json:"subject_id"`
	Flagged   bool      `json:"flagged"`
	Reasons   []string  `json:"reasons"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
}

// BlockSubjectRequest defines the payload for flagging a suspicious subject.
type BlockSubjectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ValidateActionRequest asks for a policy verdict on a named action.
type ValidateActionRequest struct {
	Action              string   `json:"action" binding:"required"`
	Resource            string   `json:"resource"`
	RequiredPermissions []string `json:"required_permissions"`
}

// ValidateActionResponse carries the policy verdict.
type ValidateActionResponse struct {
	Allowed             bool     `json:"allowed"`
	Reason              string   `json:"reason,omitempty"`
	RequiredPermissions []string `json:"required_permissions,omitempty"`
}

// GuardCheckRequest describes a protected route requirement.
type GuardCheckRequest struct {
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	Mode        string   `json:"mode"`
	ReturnTo    string   `json:"return_to"`
}

// GuardCheckResponse is the resolved routing decision.
type GuardCheckResponse struct {
	State      string `json:"state"`
	Reason     string `json:"reason,omitempty"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse aggregates dependency check outcomes.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func newSessionSummary(session domain.Session) SessionSummary {
	perms := make([]string, 0, len(session.Permissions))
	for _, p := range session.Permissions {
		perms = append(perms, string(p))
	}

	return SessionSummary{
		SubjectID:   session.SubjectID,
		Email:       session.Email,
		Role:        string(session.Role),
		Permissions: perms,
		CreatedAt:   session.CreatedAt,
		ExpiresAt:   session.ExpiresAt,
	}
}

func newAuditRecordView(record domain.AuditRecord) AuditRecordView {
	return AuditRecordView{
		ID:           record.ID,
		SubjectID:    record.SubjectID,
		SubjectEmail: record.SubjectEmail,
		Action:       record.Action,
		Resource:     record.Resource,
		Details:      record.Details,
		ClientIP:     record.ClientIP,
		UserAgent:    record.UserAgent,
		CreatedAt:    record.CreatedAt,
		Success:      record.Success,
		ErrorMessage: record.ErrorMessage,
	}
}
