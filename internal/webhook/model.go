package webhook

import (
	"errors"
	"time"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

// ProcessedEvent is one row in the dedup table. The unique index on event_id
// is the sole correctness mechanism against replays: a second arrival with the
// same id is a no-op regardless of payload differences.
type ProcessedEvent struct {
	ID             int64      `db:"id" json:"id"`
	EventID        string     `db:"event_id" json:"event_id"`
	EventType      string     `db:"event_type" json:"event_type"`
	SubscriptionID *string    `db:"subscription_id" json:"subscription_id,omitempty"`
	Signature      string     `db:"signature" json:"-"`
	Status         Status     `db:"status" json:"status"`
	RetryCount     int        `db:"retry_count" json:"retry_count"`
	ErrorMessage   *string    `db:"error_message" json:"error_message,omitempty"`
	IP             *string    `db:"ip" json:"-"`
	UserAgent      *string    `db:"user_agent" json:"-"`
	ProcessedAt    time.Time  `db:"processed_at" json:"processed_at"`
	ExpiresAt      time.Time  `db:"expires_at" json:"expires_at"`
}

// RecordParams carries everything the guard persists about a delivery.
type RecordParams struct {
	EventID        string
	EventType      string
	SubscriptionID string
	Signature      string
	IP             string
	UserAgent      string
}

// Result is the intake outcome returned to the gateway. Duplicates are
// accepted so the gateway stops retrying.
type Result struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}
