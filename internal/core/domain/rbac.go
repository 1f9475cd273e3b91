package domain

import (
	"fmt"
	"sort"
)

// Role identifies a class of user. The set is closed; profile values that do
// not parse into one of these tags are rejected, never treated as a new role.
type Role string

const (
	RoleAdmin     Role = "admin"
	RolePastor    Role = "pastor"
	RoleRecepcao  Role = "recepcao"
	RoleDizimista Role = "dizimista"
)

// Permission names a fine-grained capability in namespace:action form.
type Permission string

const (
	PermissionVisitorsView      Permission = "visitors:view"
	PermissionVisitorsCreate    Permission = "visitors:create"
	PermissionVisitorsEdit      Permission = "visitors:edit"
	PermissionVisitorsDelete    Permission = "visitors:delete"
	PermissionVisitsView        Permission = "visits:view"
	PermissionVisitsEdit        Permission = "visits:edit"
	PermissionMessagesSend      Permission = "messages:send"
	PermissionReportsView       Permission = "reports:view"
	PermissionReportsExport     Permission = "reports:export"
	PermissionContributionsView Permission = "contributions:view"
	PermissionUsersManage       Permission = "users:manage"
	PermissionSettingsManage    Permission = "settings:manage"
	PermissionAdminAccess       Permission = "admin:access"
	PermissionLogsView          Permission = "logs:view"
)

// rolePermissions is the authoritative role to permission mapping. It is
// defined once here and never mutated at runtime; privilege changes go
// through this table, not through runtime patches.
var rolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermissionVisitorsView,
		PermissionVisitorsCreate,
		PermissionVisitorsEdit,
		PermissionVisitorsDelete,
		PermissionVisitsView,
		PermissionVisitsEdit,
		PermissionMessagesSend,
		PermissionReportsView,
		PermissionReportsExport,
		PermissionContributionsView,
		PermissionUsersManage,
		PermissionSettingsManage,
		PermissionAdminAccess,
		PermissionLogsView,
	},
	RolePastor: {
		PermissionVisitorsView,
		PermissionVisitorsCreate,
		PermissionVisitorsEdit,
		PermissionVisitsView,
		PermissionVisitsEdit,
		PermissionMessagesSend,
		PermissionReportsView,
		PermissionReportsExport,
	},
	RoleRecepcao: {
		PermissionVisitorsView,
		PermissionVisitorsCreate,
		PermissionVisitorsEdit,
		PermissionVisitsView,
		PermissionVisitsEdit,
		PermissionMessagesSend,
	},
	RoleDizimista: {
		PermissionContributionsView,
	},
}

func init() {
	if err := validateRolePermissions(); err != nil {
		panic(err)
	}
}

func validateRolePermissions() error {
	for _, role := range Roles() {
		perms, ok := rolePermissions[role]
		if !ok || len(perms) == 0 {
			return fmt.Errorf("rbac: role %q has no permissions", role)
		}
		seen := make(map[Permission]struct{}, len(perms))
		for _, p := range perms {
			if _, dup := seen[p]; dup {
				return fmt.Errorf("rbac: role %q lists %q twice", role, p)
			}
			seen[p] = struct{}{}
		}
	}
	return nil
}

// Roles returns the closed set of recognized roles.
func Roles() []Role {
	return []Role{RoleAdmin, RolePastor, RoleRecepcao, RoleDizimista}
}

// ParseRole maps a raw profile string onto the closed role set. Unrecognized
// values fail closed.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleAdmin, RolePastor, RoleRecepcao, RoleDizimista:
		return Role(raw), nil
	}
	return "", fmt.Errorf("rbac: unknown role %q", raw)
}

// PermissionsFor returns the permission set granted to the role. The result
// is a defensive copy; callers may not mutate the underlying table.
func PermissionsFor(role Role) []Permission {
	perms := rolePermissions[role]
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// AllPermissions returns the full permission universe, sorted.
func AllPermissions() []Permission {
	seen := make(map[Permission]struct{})
	for _, perms := range rolePermissions {
		for _, p := range perms {
			seen[p] = struct{}{}
		}
	}
	out := make([]Permission, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
