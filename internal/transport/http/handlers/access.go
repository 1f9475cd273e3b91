package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/machoalfa/eclesia-access/internal/core/domain"
	"github.com/machoalfa/eclesia-access/internal/usecase"
)

// AccessHandler exposes the policy engine over HTTP: action validation for
// clients that want a dry-run verdict, and route-guard decisions for the
// frontend router.
type AccessHandler struct {
	security *usecase.SecurityMiddleware
	guard    *usecase.RouteGuard
}

// NewAccessHandler constructs AccessHandler.
func NewAccessHandler(security *usecase.SecurityMiddleware, guard *usecase.RouteGuard) *AccessHandler {
	return &AccessHandler{security: security, guard: guard}
}

// RegisterRoutes binds policy routes. The guard endpoint performs its own
// session reconciliation, so only action validation sits behind the session
// middleware.
func (h *AccessHandler) RegisterRoutes(r *gin.RouterGroup, sessionMiddleware gin.HandlerFunc) {
	r.POST("/validate-action", sessionMiddleware, h.validateAction)
	r.POST("/guard", h.guardCheck)
}

func (h *AccessHandler) validateAction(c *gin.Context) {
	var req ValidateActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid validation payload"))
		return
	}

	required := make([]domain.Permission, 0, len(req.RequiredPermissions))
	for _, raw := range req.RequiredPermissions {
		required = append(required, domain.Permission(raw))
	}

	verdict := h.security.ValidateAction(c.Request.Context(), req.Action, req.Resource, required)

	perms := make([]string, 0, len(verdict.RequiredPermissions))
	for _, p := range verdict.RequiredPermissions {
		perms = append(perms, string(p))
	}

	c.JSON(http.StatusOK, ValidateActionResponse{
		Allowed:             verdict.Allowed,
		Reason:              verdict.Reason,
		RequiredPermissions: perms,
	})
}

func (h *AccessHandler) guardCheck(c *gin.Context) {
	var req GuardCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid guard payload"))
		return
	}

	requirement := usecase.Requirement{
		ReturnTo: req.ReturnTo,
	}

	if raw := strings.TrimSpace(req.Role); raw != "" {
		role, err := domain.ParseRole(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unknown role"))
			return
		}
		requirement.Role = &role
	}

	for _, raw := range req.Permissions {
		requirement.Permissions = append(requirement.Permissions, domain.Permission(raw))
	}

	if req.Mode == "any" {
		requirement.Mode = usecase.GateAny
	}

	decision := h.guard.Check(c.Request.Context(), requirement)

	resp := GuardCheckResponse{
		RedirectTo: decision.RedirectTo,
		Reason:     decision.Reason,
	}

	switch decision.State {
	case usecase.StateAuthorized:
		resp.State = "authorized"
	case usecase.StateDeniedUnauthenticated:
		resp.State = "unauthenticated"
	case usecase.StateDeniedUnauthorized:
		resp.State = "unauthorized"
	}

	c.JSON(http.StatusOK, resp)
}
