package revoke

import (
	"context"
	"database/sql"
	"time"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store over PostgreSQL so revocations are visible to
// every process sharing the database.
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`insert into revoked_tokens(token_hash, expires_at, revoked_at)
		 values($1, $2, now())
		 on conflict (token_hash) do nothing`,
		Key(token), expiresAt.UTC(),
	)
	return err
}

func (s *PGStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx,
		`select exists(
			select 1 from revoked_tokens where token_hash = $1 and expires_at > now()
		 )`,
		Key(token),
	).Scan(&revoked)
	if err != nil {
		return false, err
	}
	return revoked, nil
}

func (s *PGStore) SweepExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from revoked_tokens where expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
