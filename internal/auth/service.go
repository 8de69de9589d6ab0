package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/peakfit/gymcore/internal/obs"
	"github.com/peakfit/gymcore/internal/revoke"
	"github.com/peakfit/gymcore/internal/token"
	"github.com/peakfit/gymcore/internal/txid"
)

const (
	defaultMaxAttempts = 3
	defaultLockFor     = 5 * time.Minute
	defaultResetAfter  = 10 * time.Minute
)

// Service drives credential validation, the per-account lockout state
// machine and token issuance. It is the only writer of lockout state.
type Service struct {
	creds   CredentialStore
	tokens  *token.Service
	revoked revoke.Store
	now     func() time.Time
	policy  LockoutPolicy
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithLockoutPolicy overrides the lockout thresholds.
func WithLockoutPolicy(policy LockoutPolicy) Option {
	return func(s *Service) {
		if policy.MaxAttempts > 0 {
			s.policy.MaxAttempts = policy.MaxAttempts
		}
		if policy.LockFor > 0 {
			s.policy.LockFor = policy.LockFor
		}
		if policy.ResetAfter > 0 {
			s.policy.ResetAfter = policy.ResetAfter
		}
	}
}

// NewService constructs the authentication orchestrator.
func NewService(creds CredentialStore, tokens *token.Service, revoked revoke.Store, opts ...Option) *Service {
	svc := &Service{
		creds:   creds,
		tokens:  tokens,
		revoked: revoked,
		now:     time.Now,
		policy: LockoutPolicy{
			MaxAttempts: defaultMaxAttempts,
			LockFor:     defaultLockFor,
			ResetAfter:  defaultResetAfter,
		},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	Token     string
	Role      Role
	ExpiresAt time.Time
}

// Login validates the credentials and issues a token. Unknown usernames and
// wrong passwords fail identically with ErrInvalidCredentials; an account
// inside its lockout window fails with ErrAccountLocked before the password
// is even checked.
func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	cred, err := s.authenticate(ctx, username, password)
	if err != nil {
		return LoginResult{}, err
	}

	tok, expiresAt, err := s.tokens.Issue(cred.Username, string(cred.Role))
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}
	return LoginResult{Token: tok, Role: cred.Role, ExpiresAt: expiresAt}, nil
}

// Logout revokes the bearer token attached to the calling context until its
// natural expiry.
func (s *Service) Logout(ctx context.Context) error {
	raw, ok := TokenFromContext(ctx)
	if !ok {
		return ErrNoActiveSession
	}
	expiresAt, err := s.tokens.ExpiryOf(raw)
	if err != nil {
		return ErrNoActiveSession
	}
	if err := s.revoked.Revoke(ctx, raw, expiresAt); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// ChangePassword re-runs the authenticate path with the old password (the
// lockout state machine applies to it like to any login) and then stores a
// fresh hash of the new one.
func (s *Service) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return fmt.Errorf("%w: new password is empty", ErrInvalidInput)
	}
	cred, err := s.authenticate(ctx, username, oldPassword)
	if err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.creds.UpdatePassword(ctx, cred.Username, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *Service) authenticate(ctx context.Context, username, password string) (Credential, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Credential{}, ErrInvalidCredentials
	}

	cred, err := s.creds.Find(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Uniform failure so login cannot enumerate usernames.
			return Credential{}, ErrInvalidCredentials
		}
		return Credential{}, fmt.Errorf("find credential: %w", err)
	}

	now := s.now().UTC()
	if cred.Locked(now) {
		s.logAuth(ctx, "auth.login.locked", username, map[string]any{
			"locked_until": cred.LockedUntil.UTC().Format(time.RFC3339),
		})
		obs.IncLoginFailure()
		return Credential{}, ErrAccountLocked
	}

	if err := VerifyPassword(cred.PasswordHash, password); err != nil {
		state, ferr := s.creds.RegisterFailure(ctx, username, now, s.policy)
		if ferr != nil && !errors.Is(ferr, ErrNotFound) {
			return Credential{}, fmt.Errorf("register login failure: %w", ferr)
		}
		fields := map[string]any{"failed_attempts": state.FailedAttempts}
		if state.LockedUntil != nil {
			fields["locked_until"] = state.LockedUntil.UTC().Format(time.RFC3339)
		}
		s.logAuth(ctx, "auth.login.failed", username, fields)
		obs.IncLoginFailure()
		return Credential{}, ErrInvalidCredentials
	}

	if err := s.creds.ResetFailures(ctx, username); err != nil {
		return Credential{}, fmt.Errorf("reset login failures: %w", err)
	}
	return cred, nil
}

func (s *Service) logAuth(ctx context.Context, msg, username string, fields map[string]any) {
	entry := map[string]any{"username": username}
	if id, ok := txid.From(ctx); ok {
		entry["transaction_id"] = id
	}
	for k, v := range fields {
		entry[k] = v
	}
	obs.Info(msg, entry)
}
