package wallet

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

const walletColumns = `id, user_id, available, total, pending, cashback, promo, total_earned, total_spent, last_synced_at, created_at, updated_at`

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// GetOrCreate returns the user's wallet, creating it lazily on first read.
func (r *Repository) GetOrCreate(ctx context.Context, userID int) (*Wallet, error) {
	w := &Wallet{}
	err := r.db.GetContext(ctx, w, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO wallets (user_id)
		 VALUES ($1)
		 ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
		 RETURNING `+walletColumns,
		userID,
	).StructScan(w)
	if err != nil {
		return nil, err
	}

	return w, nil
}

// ApplyCorrection overwrites the cached balance with the ledger-derived one
// and stamps the sync time. Held coins stay in pending: available is the
// ledger balance minus the row's current holds, read atomically in the UPDATE.
func (r *Repository) ApplyCorrection(ctx context.Context, userID int, balance int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE wallets
		 SET available = $1 - pending,
		     total = $1,
		     last_synced_at = NOW(),
		     updated_at = NOW()
		 WHERE user_id = $2`,
		balance, userID)
	return err
}

// StampSynced records a clean reconciliation pass without touching balances.
func (r *Repository) StampSynced(ctx context.Context, userID int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE wallets SET last_synced_at = NOW() WHERE user_id = $1`, userID)
	return err
}

// ListUserIDs returns every user with a wallet, for batch sweeps.
func (r *Repository) ListUserIDs(ctx context.Context) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids, `SELECT user_id FROM wallets ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	return ids, nil
}
