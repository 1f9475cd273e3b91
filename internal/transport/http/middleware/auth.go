package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/machoalfa/eclesia-access/internal/core/domain"
	"github.com/machoalfa/eclesia-access/internal/infra/security"
	"github.com/machoalfa/eclesia-access/internal/usecase"
)

const sessionContextKey = "session"

// ErrorResponse is the error payload shared by the middleware gates and the
// handlers package.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse stamps an error payload with the request's trace ID.
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// RequireSession validates the Authorization bearer token and binds the live
// session to the request. The token is only honoured while its subject still
// occupies the session slot.
func RequireSession(tokens *security.SessionTokenManager, store *usecase.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				NewErrorResponse(c, "missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				NewErrorResponse(c, "invalid authorization format: expected 'Bearer <token>'"))
			return
		}

		token := strings.TrimSpace(parts[1])
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				NewErrorResponse(c, "missing session token"))
			return
		}

		claims, err := tokens.Parse(token)
		if err != nil {
			switch {
			case errors.Is(err, security.ErrExpiredSessionToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					NewErrorResponse(c, "session token expired"))
			case errors.Is(err, security.ErrInvalidSessionToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					NewErrorResponse(c, "invalid session token"))
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					NewErrorResponse(c, "authentication failed"))
			}
			return
		}

		session, ok := store.Live()
		if !ok || session.SubjectID != claims.Subject {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				NewErrorResponse(c, "no active session for token"))
			return
		}

		c.Set(SubjectIDKey, session.SubjectID)
		c.Set(sessionContextKey, session)

		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.SubjectID = session.SubjectID
		}

		c.Next()
	}
}

// RequireRole checks that the bound session carries the given role.
func RequireRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := GetSession(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				NewErrorResponse(c, "authentication required"))
			return
		}

		if session.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden,
				NewErrorResponse(c, "insufficient permissions"))
			return
		}

		c.Next()
	}
}

// RequirePermissions checks the bound session against the permission gate.
func RequirePermissions(mode usecase.GateMode, perms ...domain.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := GetSession(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				NewErrorResponse(c, "authentication required"))
			return
		}

		if !permitted(session, mode, perms) {
			c.AbortWithStatusJSON(http.StatusForbidden,
				NewErrorResponse(c, "insufficient permissions"))
			return
		}

		c.Next()
	}
}

func permitted(session domain.Session, mode usecase.GateMode, perms []domain.Permission) bool {
	if len(perms) == 0 {
		return true
	}

	if mode == usecase.GateAny {
		for _, p := range perms {
			if session.HasPermission(p) {
				return true
			}
		}
		return false
	}

	for _, p := range perms {
		if !session.HasPermission(p) {
			return false
		}
	}
	return true
}

// GetSession retrieves the session bound by RequireSession.
func GetSession(c *gin.Context) (domain.Session, bool) {
	val, exists := c.Get(sessionContextKey)
	if !exists {
		return domain.Session{}, false
	}

	session, ok := val.(domain.Session)
	return session, ok
}

// GetAuthenticatedSubjectID retrieves the subject ID from context (helper for handlers)
func GetAuthenticatedSubjectID(c *gin.Context) (string, bool) {
	subjectID, exists := c.Get(SubjectIDKey)
	if !exists {
		return "", false
	}

	if id, ok := subjectID.(string); ok {
		return id, true
	}

	return "", false
}
