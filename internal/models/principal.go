package models

import "strings"

// Role is the immutable role assigned to a principal at sign-up.
type Role string

// Supported roles.
const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// ParseRole normalises a raw role value.
func ParseRole(value string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleTeacher:
		return RoleTeacher, true
	case RoleStudent:
		return RoleStudent, true
	default:
		return "", false
	}
}

// Principal is the user record stored under users/{id}.
type Principal struct {
	ID    string `json:"-"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// IsTeacher reports whether the principal owns classes and homework.
func (p Principal) IsTeacher() bool {
	return p.Role == RoleTeacher
}
