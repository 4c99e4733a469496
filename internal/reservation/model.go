package reservation

import (
	"errors"
	"time"
)

type Status string

const (
	StatusHeld     Status = "held"
	StatusCaptured Status = "captured"
	StatusReleased Status = "released"
)

var (
	ErrNotFound              = errors.New("reservation not found")
	ErrNotHeld               = errors.New("reservation is not held")
	ErrInsufficientAvailable = errors.New("insufficient available coins")
)

// Reservation is a temporary hold backing the wallet's pending bucket.
// Held coins are not a ledger movement yet: capture settles the hold into a
// spent entry, release (or expiry) returns the coins.
type Reservation struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int       `db:"user_id" json:"user_id"`
	Amount    int64     `db:"amount" json:"amount"`
	Purpose   string    `db:"purpose" json:"purpose"`
	Status    Status    `db:"status" json:"status"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
