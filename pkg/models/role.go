// Package models defines the shared value types for duet sessions.
package models

// Role identifies which side of the dual-agent pair an agent plays.
type Role string

const (
	// RoleManager plans the work and delegates implementation steps.
	RoleManager Role = "manager"
	// RoleWorker implements the steps the manager delegates.
	RoleWorker Role = "worker"
)

// Valid returns true if the role is a known value.
func (r Role) Valid() bool {
	switch r {
	case RoleManager, RoleWorker:
		return true
	default:
		return false
	}
}

// Other returns the opposite role of the pair.
func (r Role) Other() Role {
	if r == RoleManager {
		return RoleWorker
	}
	return RoleManager
}
