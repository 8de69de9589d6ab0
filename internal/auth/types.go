package auth

import (
	"strings"
	"time"
)

// Role is the single role claim carried by every principal. The system has
// exactly one role per principal, no hierarchies.
type Role string

const (
	RoleTrainee Role = "trainee"
	RoleTrainer Role = "trainer"
)

// ParseRole normalizes and validates a role string.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.TrimSpace(strings.ToLower(raw))) {
	case RoleTrainee:
		return RoleTrainee, true
	case RoleTrainer:
		return RoleTrainer, true
	default:
		return "", false
	}
}

// Credential is the authentication record for one account. Mutated only by
// this package; the failed-attempt fields drive the lockout state machine.
//
// Invariant: LockedUntil set implies FailedAttempts reached the threshold;
// the counter returns to zero on a successful login.
type Credential struct {
	Username       string
	PasswordHash   string
	Role           Role
	Active         bool
	FailedAttempts int
	LastFailedAt   *time.Time
	LockedUntil    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Locked reports whether the credential is inside an active lockout window.
// The lock lapses by itself once now reaches LockedUntil.
func (c Credential) Locked(now time.Time) bool {
	return c.LockedUntil != nil && now.Before(*c.LockedUntil)
}

// Principal is the verified caller identity populated by the request gate.
type Principal struct {
	Username string
	Role     Role
}
