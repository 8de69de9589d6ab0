package training

import (
	"context"
	"database/sql"
	"time"
)

var _ Ledger = (*PGStore)(nil)

// PGStore reads the training ledger from PostgreSQL.
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const selectTrainings = `
select t.id, t.name, t.trainee_username, t.trainer_username,
       t.trainer_first_name, t.trainer_last_name, t.trainer_active,
       t.training_date, t.duration_minutes, t.updated_at
  from trainings t`

func (s *PGStore) ListAll(ctx context.Context) ([]Training, error) {
	rows, err := s.db.QueryContext(ctx, selectTrainings+` order by t.training_date asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrainings(rows)
}

func (s *PGStore) ListChangedSince(ctx context.Context, since time.Time) ([]Training, error) {
	rows, err := s.db.QueryContext(ctx,
		selectTrainings+` where t.updated_at > $1 order by t.updated_at asc`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrainings(rows)
}

func scanTrainings(rows *sql.Rows) ([]Training, error) {
	var out []Training
	for rows.Next() {
		var t Training
		if err := rows.Scan(&t.ID, &t.Name, &t.TraineeUsername, &t.TrainerUsername,
			&t.TrainerFirstName, &t.TrainerLastName, &t.TrainerActive,
			&t.Date, &t.DurationMinutes, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
