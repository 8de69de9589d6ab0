package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

var _ CredentialStore = (*PGStore)(nil)

// PGStore implements CredentialStore using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Find(ctx context.Context, username string) (Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`select username, password_hash, role, active, failed_attempts,
		        last_failed_at, locked_until, created_at, updated_at
		   from credentials where username = $1`,
		strings.TrimSpace(username),
	)
	var (
		cred Credential
		role string
	)
	err := row.Scan(&cred.Username, &cred.PasswordHash, &role, &cred.Active,
		&cred.FailedAttempts, &cred.LastFailedAt, &cred.LockedUntil,
		&cred.CreatedAt, &cred.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Credential{}, ErrNotFound
		}
		return Credential{}, err
	}
	cred.Role = Role(role)
	return cred, nil
}

// RegisterFailure applies stale-streak forgiveness, the increment and the
// lock decision inside a single UPDATE so concurrent failures for the same
// account serialize on the row and never under-count.
func (s *PGStore) RegisterFailure(ctx context.Context, username string, now time.Time, policy LockoutPolicy) (FailureState, error) {
	staleCutoff := now.Add(-policy.ResetAfter)
	lockedUntil := now.Add(policy.LockFor)

	row := s.db.QueryRowContext(ctx,
		`update credentials set
		    failed_attempts = case
		        when last_failed_at is not null and last_failed_at >= $2
		            then failed_attempts + 1
		        else 1
		    end,
		    locked_until = case
		        when (case
		            when last_failed_at is not null and last_failed_at >= $2
		                then failed_attempts + 1
		            else 1
		        end) >= $3 then $4
		        else locked_until
		    end,
		    last_failed_at = $5,
		    updated_at = now()
		  where username = $1
		  returning failed_attempts, locked_until`,
		strings.TrimSpace(username), staleCutoff, policy.MaxAttempts, lockedUntil, now,
	)
	var state FailureState
	if err := row.Scan(&state.FailedAttempts, &state.LockedUntil); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FailureState{}, ErrNotFound
		}
		return FailureState{}, err
	}
	return state, nil
}

func (s *PGStore) ResetFailures(ctx context.Context, username string) error {
	res, err := s.db.ExecContext(ctx,
		`update credentials
		    set failed_attempts = 0, last_failed_at = null, locked_until = null,
		        updated_at = now()
		  where username = $1`,
		strings.TrimSpace(username),
	)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (s *PGStore) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update credentials set password_hash = $2, updated_at = now()
		  where username = $1`,
		strings.TrimSpace(username), passwordHash,
	)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
