package domain

// ActionValidation is the transient result of a pre-execution authorization
// check. Computed fresh on every call; never persisted.
type ActionValidation struct {
	Allowed             bool
	Reason              string
	RequiredPermissions []Permission
}

// Allow returns a passing validation.
func Allow() ActionValidation {
	return ActionValidation{Allowed: true}
}

// Deny returns a failing validation carrying a human-readable reason and,
// optionally, the permissions that were required.
func Deny(reason string, required ...Permission) ActionValidation {
	return ActionValidation{Allowed: false, Reason: reason, RequiredPermissions: required}
}
