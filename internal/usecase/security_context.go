package usecase

import (
	"github.com/machoalfa/eclesia-access/internal/core/domain"
)

// resourceAccess maps resource names to the permissions that open them. The
// check is any-of; unknown resources deny.
var resourceAccess = map[string][]domain.Permission{
	"visitors":      {domain.PermissionVisitorsView},
	"visits":        {domain.PermissionVisitsView},
	"messages":      {domain.PermissionMessagesSend},
	"reports":       {domain.PermissionReportsView, domain.PermissionReportsExport},
	"contributions": {domain.PermissionContributionsView},
	"users":         {domain.PermissionUsersManage},
	"settings":      {domain.PermissionSettingsManage},
	"admin":         {domain.PermissionAdminAccess},
	"logs":          {domain.PermissionLogsView},
}

// SecurityContext is a read-only query facade over the session store. Every
// answer is computed fresh against the current session; nothing is cached, so
// expiry and logout take effect on the very next call.
type SecurityContext struct {
	store *SessionStore
}

// NewSecurityContext constructs a SecurityContext over the store.
func NewSecurityContext(store *SessionStore) *SecurityContext {
	return &SecurityContext{store: store}
}

// IsAuthenticated reports whether a live session exists.
func (c *SecurityContext) IsAuthenticated() bool {
	return c.store.IsLive()
}

// Subject returns the live session, if any.
func (c *SecurityContext) Subject() (domain.Session, bool) {
	return c.store.Live()
}

// HasPermission reports whether the live session grants the permission.
func (c *SecurityContext) HasPermission(p domain.Permission) bool {
	session, ok := c.store.Live()
	return ok && session.HasPermission(p)
}

// HasRole reports whether the live session carries exactly the role.
func (c *SecurityContext) HasRole(r domain.Role) bool {
	session, ok := c.store.Live()
	return ok && session.Role == r
}

// HasAnyPermission reports whether the live session grants at least one of
// the permissions. An empty set is never satisfied.
func (c *SecurityContext) HasAnyPermission(ps ...domain.Permission) bool {
	session, ok := c.store.Live()
	if !ok {
		return false
	}
	for _, p := range ps {
		if session.HasPermission(p) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether the live session grants every
// permission. An empty set is vacuously satisfied by any live session.
func (c *SecurityContext) HasAllPermissions(ps ...domain.Permission) bool {
	session, ok := c.store.Live()
	if !ok {
		return false
	}
	for _, p := range ps {
		if !session.HasPermission(p) {
			return false
		}
	}
	return true
}

// CanAccess evaluates the fixed resource table. Unknown resources deny;
// there is no "unknown means allow" path.
func (c *SecurityContext) CanAccess(resource string) bool {
	required, ok := resourceAccess[resource]
	if !ok {
		return false
	}
	return c.HasAnyPermission(required...)
}
