package usecase

import (
	"context"
	"fmt"
	"net/url"

	"github.com/machoalfa/eclesia-access/internal/core/domain"
)

// GuardState classifies the outcome of a route check.
type GuardState int

const (
	// StateAuthorized means the caller may see the protected view.
	StateAuthorized GuardState = iota
	// StateDeniedUnauthenticated means no live session exists; the caller is
	// redirected to login with the original target preserved.
	StateDeniedUnauthenticated
	// StateDeniedUnauthorized means the caller is authenticated but lacks the
	// required role or permissions. This is a distinct failure class from
	// unauthenticated and must never be rendered as a login redirect.
	StateDeniedUnauthorized
)

// GateMode selects how a multi-permission requirement combines.
type GateMode int

const (
	GateAll GateMode = iota
	GateAny
)

// Requirement describes what a protected route demands.
type Requirement struct {
	Role        *domain.Role
	Permissions []domain.Permission
	Mode        GateMode
	ReturnTo    string
}

// Decision is the resolved outcome of a guard check.
type Decision struct {
	State      GuardState
	Reason     string
	RedirectTo string
}

// RouteGuard gates protected views. Every check revalidates the session
// against the provider first, so stale local state cannot authorize.
type RouteGuard struct {
	auth      *AuthService
	sctx      *SecurityContext
	loginPath string
}

// NewRouteGuard constructs a RouteGuard redirecting to loginPath when
// unauthenticated.
func NewRouteGuard(auth *AuthService, sctx *SecurityContext, loginPath string) *RouteGuard {
	if loginPath == "" {
		loginPath = "/login"
	}
	return &RouteGuard{auth: auth, sctx: sctx, loginPath: loginPath}
}

// Check resolves the requirement to one of the guard states.
func (g *RouteGuard) Check(ctx context.Context, req Requirement) Decision {
	live, err := g.auth.ValidateSession(ctx)
	if err != nil || !live {
		return Decision{
			State:      StateDeniedUnauthenticated,
			Reason:     "authentication required",
			RedirectTo: g.loginRedirect(req.ReturnTo),
		}
	}

	if req.Role != nil && !g.sctx.HasRole(*req.Role) {
		return Decision{
			State:  StateDeniedUnauthorized,
			Reason: fmt.Sprintf("role %q required", *req.Role),
		}
	}

	if len(req.Permissions) > 0 {
		gate := Gate{sctx: g.sctx}
		if !gate.Allowed(req.Permissions, req.Mode) {
			return Decision{
				State:  StateDeniedUnauthorized,
				Reason: reasonInsufficientPermissions,
			}
		}
	}

	return Decision{State: StateAuthorized}
}

func (g *RouteGuard) loginRedirect(returnTo string) string {
	if returnTo == "" {
		return g.loginPath
	}
	return g.loginPath + "?return_to=" + url.QueryEscape(returnTo)
}

// Gate is the read-only companion primitive for conditionally showing UI
// fragments without running the full guard state machine. It does not
// revalidate the session remotely.
type Gate struct {
	sctx *SecurityContext
}

// NewGate constructs a Gate over the security context.
func NewGate(sctx *SecurityContext) *Gate {
	return &Gate{sctx: sctx}
}

// Allowed reports whether the permissions are held under the given mode.
func (g Gate) Allowed(perms []domain.Permission, mode GateMode) bool {
	if len(perms) == 0 {
		return g.sctx.IsAuthenticated()
	}
	if mode == GateAny {
		return g.sctx.HasAnyPermission(perms...)
	}
	return g.sctx.HasAllPermissions(perms...)
}
