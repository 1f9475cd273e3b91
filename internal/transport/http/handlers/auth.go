package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/machoalfa/eclesia-access/internal/infra/security"
	"github.com/machoalfa/eclesia-access/internal/transport/http/middleware"
	"github.com/machoalfa/eclesia-access/internal/usecase"
)

// AuthHandler exposes session lifecycle endpoints.
type AuthHandler struct {
	auth   *usecase.AuthService
	store  *usecase.SessionStore
	tokens *security.SessionTokenManager
	now    func() time.Time
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService, store *usecase.SessionStore, tokens *security.SessionTokenManager) *AuthHandler {
	return &AuthHandler{
		auth:   auth,
		store:  store,
		tokens: tokens,
		now:    time.Now,
	}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (h *AuthHandler) WithClock(now func() time.Time) *AuthHandler {
	if now != nil {
		h.now = now
	}
	return h
}

// RegisterRoutes binds session routes, applying optional middleware ahead of login.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, sessionMiddleware gin.HandlerFunc, loginMiddlewares ...gin.HandlerFunc) {
	chain := append([]gin.HandlerFunc{}, loginMiddlewares...)
	chain = append(chain, h.login)
	r.POST("/login", chain...)

	r.POST("/logout", sessionMiddleware, h.logout)
	r.POST("/renew", sessionMiddleware, h.renew)
	// Validate reconciles stale local state, so it cannot sit behind the
	// session gate: an expired token is exactly when callers need it.
	r.POST("/validate", h.validate)
	r.GET("/session", sessionMiddleware, h.session)
}

func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	req.Identifier = strings.TrimSpace(req.Identifier)

	session, err := h.auth.Login(c.Request.Context(), req.Identifier, req.Secret)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid credentials"))
		case errors.Is(err, usecase.ErrProfileNotFound):
			c.JSON(http.StatusForbidden, NewErrorResponse(c, "no profile for account"))
		case errors.Is(err, usecase.ErrProfileInactive):
			c.JSON(http.StatusForbidden, NewErrorResponse(c, "account deactivated"))
		case errors.Is(err, usecase.ErrUnknownRole):
			c.JSON(http.StatusForbidden, NewErrorResponse(c, "account role not recognized"))
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "login failed"))
		}
		return
	}

	token, err := h.tokens.Issue(*session)
	if err != nil {
		h.auth.Logout(c.Request.Context())
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to issue session token"))
		return
	}

	expiresIn := int(session.ExpiresAt.Sub(h.now()).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}

	c.JSON(http.StatusOK, LoginResponse{
		SessionToken: token,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
		Session:      newSessionSummary(*session),
	})
}

func (h *AuthHandler) logout(c *gin.Context) {
	h.auth.Logout(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) renew(c *gin.Context) {
	renewed, err := h.auth.RenewSession(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to renew session"))
		return
	}

	resp := RenewResponse{Renewed: renewed}
	if session, ok := h.store.Live(); ok {
		expires := session.ExpiresAt
		resp.ExpiresAt = &expires
	}

	c.JSON(http.StatusOK, resp)
}

func (h *AuthHandler) validate(c *gin.Context) {
	live, err := h.auth.ValidateSession(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to validate session"))
		return
	}

	c.JSON(http.StatusOK, ValidateResponse{Live: live})
}

func (h *AuthHandler) session(c *gin.Context) {
	session, ok := middleware.GetSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	c.JSON(http.StatusOK, newSessionSummary(session))
}
