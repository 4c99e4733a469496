package ledger

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind classifies a coin movement. Credits add to the balance, debits subtract.
type Kind string

const (
	KindEarned   Kind = "earned"
	KindSpent    Kind = "spent"
	KindRefunded Kind = "refunded"
	KindBonus    Kind = "bonus"
	KindExpired  Kind = "expired"
)

// Sign returns +1 for credit kinds and -1 for debit kinds.
func (k Kind) Sign() int64 {
	switch k {
	case KindEarned, KindRefunded, KindBonus:
		return 1
	case KindSpent, KindExpired:
		return -1
	}
	return 0
}

func (k Kind) Valid() bool {
	return k.Sign() != 0
}

// Source is the closed registry of coin origins. Unknown sources are rejected
// at append time instead of falling into a default bucket.
type Source string

const (
	SourceOrder           Source = "order"
	SourceReferral        Source = "referral"
	SourceDailyLogin      Source = "daily_login"
	SourceAchievement     Source = "achievement"
	SourceChallenge       Source = "challenge"
	SourceStreak          Source = "streak"
	SourceSpinWheel       Source = "spin_wheel"
	SourceCashback        Source = "cashback"
	SourceRedeem          Source = "redeem"
	SourceRefund          Source = "refund"
	SourceExpiry          Source = "expiry"
	SourceAdminAdjustment Source = "admin_adjustment"
	SourcePayment         Source = "payment"
)

var knownSources = map[Source]struct{}{
	SourceOrder:           {},
	SourceReferral:        {},
	SourceDailyLogin:      {},
	SourceAchievement:     {},
	SourceChallenge:       {},
	SourceStreak:          {},
	SourceSpinWheel:       {},
	SourceCashback:        {},
	SourceRedeem:          {},
	SourceRefund:          {},
	SourceExpiry:          {},
	SourceAdminAdjustment: {},
	SourcePayment:         {},
}

func (s Source) Valid() bool {
	_, ok := knownSources[s]
	return ok
}

var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrUnknownKind         = errors.New("unknown ledger kind")
	ErrUnknownSource       = errors.New("unknown ledger source")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Metadata is an opaque key/value blob stored as JSONB.
type Metadata map[string]interface{}

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into ledger.Metadata", src)
	}
	return json.Unmarshal(b, m)
}

// Entry is a single immutable coin movement. Corrections are new offsetting
// entries, never updates; the one exception is the resulting_balance snapshot,
// which RebuildHistory may repair in place.
type Entry struct {
	ID               int64      `db:"id" json:"id"`
	UserID           int        `db:"user_id" json:"user_id"`
	Kind             Kind       `db:"kind" json:"kind"`
	Amount           int64      `db:"amount" json:"amount"`
	Source           Source     `db:"source" json:"source"`
	ResultingBalance int64      `db:"resulting_balance" json:"resulting_balance"`
	Metadata         Metadata   `db:"metadata" json:"metadata,omitempty"`
	ExpiresAt        *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	ExpiredBy        *int64     `db:"expired_by" json:"expired_by,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// Filter narrows HistoryOf scans. Zero values mean "no restriction".
type Filter struct {
	Kinds   []Kind
	Sources []Source
	Since   *time.Time
	Until   *time.Time
	Limit   int
	Offset  int
}

// ExpiryStats summarizes one coin-expiry sweep.
type ExpiryStats struct {
	UsersAffected int   `json:"users_affected"`
	CoinsExpired  int64 `json:"coins_expired"`
	EntriesMarked int   `json:"entries_marked"`
}
