package reservation

import (
	"context"
	"time"
)

type Holder interface {
	Reserve(ctx context.Context, userID int, amount int64, purpose string, ttl time.Duration) (*Reservation, error)
	Capture(ctx context.Context, reservationID int64) error
	Release(ctx context.Context, reservationID int64) error
	ReleaseExpired(ctx context.Context, now time.Time) (int, error)
}

var _ Holder = (*Repository)(nil)
