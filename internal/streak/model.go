package streak

import "time"

// Streak tracks consecutive-day activity. A freeze window lets a user miss
// days without losing the run; the daily reset job zeroes runs whose freeze
// (if any) has lapsed.
type Streak struct {
	ID               int        `db:"id" json:"id"`
	UserID           int        `db:"user_id" json:"user_id"`
	Current          int        `db:"current_streak" json:"current_streak"`
	Longest          int        `db:"longest_streak" json:"longest_streak"`
	LastActivityDate *time.Time `db:"last_activity_date" json:"last_activity_date,omitempty"`
	FrozenUntil      *time.Time `db:"frozen_until" json:"frozen_until,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
