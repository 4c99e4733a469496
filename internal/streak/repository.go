package streak

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"cashstore/internal/logger"
)

const streakColumns = `id, user_id, current_streak, longest_streak, last_activity_date, frozen_until, created_at, updated_at`

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetByUser(ctx context.Context, userID int) (*Streak, error) {
	s := &Streak{}
	err := r.db.GetContext(ctx, s,
		`SELECT `+streakColumns+` FROM streaks WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return &Streak{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Touch records activity for the given day and returns the updated streak.
// Same-day repeats are no-ops; a next-day (or freeze-covered) activity extends
// the run; anything older restarts it at 1.
func (r *Repository) Touch(ctx context.Context, userID int, at time.Time) (*Streak, error) {
	today := day(at)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	s := &Streak{}
	err = tx.QueryRowxContext(ctx,
		`SELECT `+streakColumns+` FROM streaks WHERE user_id = $1 FOR UPDATE`, userID,
	).StructScan(s)
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.QueryRowxContext(ctx,
			`INSERT INTO streaks (user_id, current_streak, longest_streak, last_activity_date)
			 VALUES ($1, 1, 1, $2)
			 RETURNING `+streakColumns,
			userID, today,
		).StructScan(s)
		if err != nil {
			return nil, err
		}
		return s, tx.Commit()
	}
	if err != nil {
		return nil, err
	}

	last := time.Time{}
	if s.LastActivityDate != nil {
		last = day(*s.LastActivityDate)
	}

	switch {
	case last.Equal(today):
		return s, tx.Commit()
	case last.Equal(today.AddDate(0, 0, -1)) && s.Current > 0:
		s.Current++
	case s.FrozenUntil != nil && !day(*s.FrozenUntil).Before(today.AddDate(0, 0, -1)) && s.Current > 0:
		// The freeze covered the missed days.
		s.Current++
	default:
		s.Current = 1
	}
	if s.Current > s.Longest {
		s.Longest = s.Current
	}

	err = tx.QueryRowxContext(ctx,
		`UPDATE streaks
		 SET current_streak = $1, longest_streak = $2, last_activity_date = $3, updated_at = NOW()
		 WHERE user_id = $4
		 RETURNING `+streakColumns,
		s.Current, s.Longest, today, userID,
	).StructScan(s)
	if err != nil {
		return nil, err
	}
	return s, tx.Commit()
}

// SetFreeze extends the user's freeze window (streak insurance).
func (r *Repository) SetFreeze(ctx context.Context, userID int, until time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE streaks SET frozen_until = $1, updated_at = NOW() WHERE user_id = $2`,
		until, userID)
	return err
}

// ResetExpired zeroes every run whose last activity is older than yesterday
// and whose freeze has lapsed. The WHERE clause only matches stale rows, so a
// back-to-back second run resets nothing.
func (r *Repository) ResetExpired(ctx context.Context, now time.Time) (int64, error) {
	yesterday := day(now).AddDate(0, 0, -1)

	res, err := r.db.ExecContext(ctx,
		`UPDATE streaks
		 SET current_streak = 0, updated_at = NOW()
		 WHERE current_streak > 0
		   AND last_activity_date < $1
		   AND (frozen_until IS NULL OR frozen_until < $2)`,
		yesterday, now)
	if err != nil {
		return 0, err
	}

	reset, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if reset > 0 {
		logger.Info("expired streaks reset", "count", reset)
	}
	return reset, nil
}
