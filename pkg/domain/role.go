package domain

import "strings"

// Role is a tenant membership role as asserted by the authentication service.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleRH        Role = "RH"
	RoleManager   Role = "MANAGER"
	RoleCandidate Role = "CANDIDATE"
)

// ParseRole normalizes case and rejects unknown roles.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RoleAdmin, RoleRH, RoleManager, RoleCandidate:
		return r, true
	default:
		return "", false
	}
}

// In reports whether r is one of roles.
func (r Role) In(roles []Role) bool {
	for _, candidate := range roles {
		if r == candidate {
			return true
		}
	}
	return false
}

func (r Role) String() string { return string(r) }
