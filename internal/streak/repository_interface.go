package streak

import (
	"context"
	"time"
)

type Tracker interface {
	GetByUser(ctx context.Context, userID int) (*Streak, error)
	Touch(ctx context.Context, userID int, at time.Time) (*Streak, error)
	SetFreeze(ctx context.Context, userID int, until time.Time) error
	ResetExpired(ctx context.Context, now time.Time) (int64, error)
}

var _ Tracker = (*Repository)(nil)
