package auth

import (
	"context"
	"time"
)

// LockoutPolicy parameterizes the per-account lockout state machine.
type LockoutPolicy struct {
	// MaxAttempts is the consecutive-failure threshold that sets the lock.
	MaxAttempts int
	// LockFor is how long a tripped account stays locked.
	LockFor time.Duration
	// ResetAfter forgives a failure streak whose last failure is older
	// than this window before counting the next failure.
	ResetAfter time.Duration
}

// FailureState is the lockout state after one recorded failure.
type FailureState struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// CredentialStore persists credentials. RegisterFailure must apply the
// read-modify-write atomically per account so concurrent failed logins for
// the same username never under-count.
type CredentialStore interface {
	Find(ctx context.Context, username string) (Credential, error)

	// RegisterFailure records one failed attempt at now under the policy:
	// a stale streak is reset to zero before the increment, and reaching
	// MaxAttempts sets LockedUntil = now + LockFor.
	RegisterFailure(ctx context.Context, username string, now time.Time, policy LockoutPolicy) (FailureState, error)

	// ResetFailures clears the counter, the last-failed timestamp and any
	// lock. Called on every successful authentication.
	ResetFailures(ctx context.Context, username string) error

	UpdatePassword(ctx context.Context, username, passwordHash string) error
}
