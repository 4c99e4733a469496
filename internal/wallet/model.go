package wallet

import "time"

// Wallet is the denormalized balance snapshot for fast reads. It is never
// authoritative; the ledger aggregate is, and reconciliation keeps the two
// equal.
type Wallet struct {
	ID          int        `db:"id" json:"id"`
	UserID      int        `db:"user_id" json:"user_id"`
	Available   int64      `db:"available" json:"available"`
	Total       int64      `db:"total" json:"total"`
	Pending     int64      `db:"pending" json:"pending"`
	Cashback    int64      `db:"cashback" json:"cashback"`
	Promo       int64      `db:"promo" json:"promo"`
	TotalEarned int64      `db:"total_earned" json:"total_earned"`
	TotalSpent  int64      `db:"total_spent" json:"total_spent"`
	LastSyncedAt *time.Time `db:"last_synced_at" json:"last_synced_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Buckets splits the balance into coin buckets for display.
func (w *Wallet) Buckets() map[string]int64 {
	primary := w.Available - w.Promo
	if primary < 0 {
		primary = 0
	}
	return map[string]int64{
		"primary":     primary,
		"promotional": w.Promo,
	}
}

// ReconcileResult describes one reconciliation pass over one wallet.
type ReconcileResult struct {
	UserID        int   `json:"user_id"`
	LedgerBalance int64 `json:"ledger_balance"`
	CacheBalance  int64 `json:"cache_balance"`
	Corrected     bool  `json:"corrected"`
}

// SweepStats summarizes a SweepAll batch.
type SweepStats struct {
	Checked   int `json:"checked"`
	Corrected int `json:"corrected"`
	Failed    int `json:"failed"`
}
