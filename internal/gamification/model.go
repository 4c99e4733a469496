package gamification

import (
	"errors"
	"time"

	"cashstore/internal/ledger"
)

// EventType is the closed set of domain events the dispatcher understands.
type EventType string

const (
	EventOrderPlaced      EventType = "order_placed"
	EventReviewSubmitted  EventType = "review_submitted"
	EventReferralSuccess  EventType = "referral_success"
	EventLogin            EventType = "login"
	EventBillUploaded     EventType = "bill_uploaded"
	EventVideoCreated     EventType = "video_created"
	EventProjectCompleted EventType = "project_completed"
	EventOfferRedeemed    EventType = "offer_redeemed"
)

var knownEventTypes = map[EventType]struct{}{
	EventOrderPlaced:      {},
	EventReviewSubmitted:  {},
	EventReferralSuccess:  {},
	EventLogin:            {},
	EventBillUploaded:     {},
	EventVideoCreated:     {},
	EventProjectCompleted: {},
	EventOfferRedeemed:    {},
}

func (e EventType) Valid() bool {
	_, ok := knownEventTypes[e]
	return ok
}

// DefinitionKind determines the ledger source of the unlock credit.
type DefinitionKind string

const (
	KindAchievement DefinitionKind = "achievement"
	KindChallenge   DefinitionKind = "challenge"
	KindStreak      DefinitionKind = "streak"
)

func (k DefinitionKind) LedgerSource() ledger.Source {
	switch k {
	case KindChallenge:
		return ledger.SourceChallenge
	case KindStreak:
		return ledger.SourceStreak
	default:
		return ledger.SourceAchievement
	}
}

// ProgressMode is how an event advances a definition's counter.
//   - count: +1 per event
//   - sum: += metadata amount (spend thresholds)
//   - streak: set to the current consecutive-day streak
type ProgressMode string

const (
	ModeCount  ProgressMode = "count"
	ModeSum    ProgressMode = "sum"
	ModeStreak ProgressMode = "streak"
)

// Definition is one achievement/challenge/streak rule. Reward amounts come
// from external configuration loaded into the definitions table.
type Definition struct {
	ID          int            `db:"id" json:"id"`
	Code        string         `db:"code" json:"code"`
	Title       string         `db:"title" json:"title"`
	Kind        DefinitionKind `db:"kind" json:"kind"`
	EventType   EventType      `db:"event_type" json:"event_type"`
	Mode        ProgressMode   `db:"mode" json:"mode"`
	Target      int64          `db:"target" json:"target"`
	RewardCoins int64          `db:"reward_coins" json:"reward_coins"`
	Active      bool           `db:"active" json:"active"`
}

// State is the per-(user, definition) lifecycle. Transitions are one-way:
// locked -> unlocked -> claimed. The unlock transition carries the ledger
// credit atomically.
type State string

const (
	StateLocked   State = "locked"
	StateUnlocked State = "unlocked"
	StateClaimed  State = "claimed"
)

type Progress struct {
	ID           int64      `db:"id" json:"id"`
	UserID       int        `db:"user_id" json:"user_id"`
	DefinitionID int        `db:"definition_id" json:"definition_id"`
	Progress     int64      `db:"progress" json:"progress"`
	Target       int64      `db:"target" json:"target"`
	State        State      `db:"state" json:"state"`
	UnlockedAt   *time.Time `db:"unlocked_at" json:"unlocked_at,omitempty"`
	ClaimedAt    *time.Time `db:"claimed_at" json:"claimed_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserProgress joins a definition with the user's progress row for listings.
type UserProgress struct {
	Definition
	Progress   int64      `db:"progress" json:"progress"`
	State      State      `db:"state" json:"state"`
	UnlockedAt *time.Time `db:"unlocked_at" json:"unlocked_at,omitempty"`
	ClaimedAt  *time.Time `db:"claimed_at" json:"claimed_at,omitempty"`
}

// Event is one entry of a BatchTrigger replay.
type Event struct {
	Type     EventType              `json:"type"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ActivityEvent is the raw activity log row Recalculate derives from.
type ActivityEvent struct {
	ID        int64           `db:"id" json:"id"`
	UserID    int             `db:"user_id" json:"user_id"`
	EventType EventType       `db:"event_type" json:"event_type"`
	Amount    int64           `db:"amount" json:"amount"`
	Metadata  ledger.Metadata `db:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

var (
	ErrUnknownEventType   = errors.New("unknown event type")
	ErrDefinitionNotFound = errors.New("definition not found")
	ErrNotUnlocked        = errors.New("definition is not unlocked")
	ErrAlreadyClaimed     = errors.New("reward already claimed")
)
