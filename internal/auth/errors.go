package auth

import "errors"

var (
	// ErrInvalidCredentials covers both unknown usernames and wrong
	// passwords so login failures do not leak which usernames exist.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrAccountLocked is returned while a lockout window is active. The
	// lock takes precedence over the password check.
	ErrAccountLocked = errors.New("auth: account locked")
	// ErrNoActiveSession is returned by logout when the calling context
	// carries no bearer token.
	ErrNoActiveSession = errors.New("auth: no active session")
	// ErrUnauthenticated marks requests with a missing, invalid, expired
	// or revoked token.
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	// ErrForbidden marks role or ownership violations by an authenticated
	// caller.
	ErrForbidden = errors.New("auth: forbidden")
	// ErrNotFound is the store-level marker for a missing credential.
	ErrNotFound = errors.New("auth: not found")
	// ErrInvalidInput marks rejected input such as an empty new password.
	ErrInvalidInput = errors.New("auth: invalid input")
)
