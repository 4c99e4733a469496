package reservation

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"cashstore/internal/ledger"
	"cashstore/internal/logger"
)

const reservationColumns = `id, user_id, amount, purpose, status, expires_at, created_at, updated_at`

type Repository struct {
	db     *sqlx.DB
	ledger *ledger.Repository
}

func NewRepository(db *sqlx.DB, ledgerRepo *ledger.Repository) *Repository {
	return &Repository{db: db, ledger: ledgerRepo}
}

// Reserve moves coins from available to pending. The hold is bounded against
// the ledger-derived balance minus existing holds, under the wallet row lock.
func (r *Repository) Reserve(ctx context.Context, userID int, amount int64, purpose string, ttl time.Duration) (*Reservation, error) {
	if amount <= 0 {
		return nil, ledger.ErrInvalidAmount
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var wallet struct {
		ID      int   `db:"id"`
		Pending int64 `db:"pending"`
	}
	err = tx.QueryRowxContext(ctx,
		`SELECT id, pending FROM wallets WHERE user_id = $1 FOR UPDATE`, userID,
	).StructScan(&wallet)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInsufficientAvailable
	}
	if err != nil {
		return nil, err
	}

	balance, err := r.ledger.BalanceOfTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if balance-wallet.Pending < amount {
		return nil, ErrInsufficientAvailable
	}

	res := &Reservation{}
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO coin_reservations (user_id, amount, purpose, status, expires_at)
		 VALUES ($1, $2, $3, 'held', $4)
		 RETURNING `+reservationColumns,
		userID, amount, purpose, time.Now().Add(ttl),
	).StructScan(res)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE wallets
		 SET pending = pending + $1, available = available - $1, updated_at = NOW()
		 WHERE id = $2`,
		amount, wallet.ID); err != nil {
		return nil, err
	}

	return res, tx.Commit()
}

// Capture settles a held reservation into a spent ledger entry.
func (r *Repository) Capture(ctx context.Context, reservationID int64) error {
	return r.settle(ctx, reservationID, true)
}

// Release returns a held reservation's coins to available.
func (r *Repository) Release(ctx context.Context, reservationID int64) error {
	return r.settle(ctx, reservationID, false)
}

func (r *Repository) settle(ctx context.Context, reservationID int64, capture bool) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res := &Reservation{}
	err = tx.QueryRowxContext(ctx,
		`SELECT `+reservationColumns+` FROM coin_reservations WHERE id = $1 FOR UPDATE`,
		reservationID,
	).StructScan(res)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if res.Status != StatusHeld {
		return ErrNotHeld
	}

	newStatus := StatusReleased
	if capture {
		newStatus = StatusCaptured
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE coin_reservations SET status = $1, updated_at = NOW() WHERE id = $2`,
		newStatus, reservationID); err != nil {
		return err
	}

	// Return the hold before settling so the cache totals stay coherent.
	if _, err := tx.ExecContext(ctx,
		`UPDATE wallets SET pending = pending - $1, available = available + $1, updated_at = NOW() WHERE user_id = $2`,
		res.Amount, res.UserID); err != nil {
		return err
	}

	if capture {
		_, err = r.ledger.AppendTx(ctx, tx, res.UserID, ledger.KindSpent, res.Amount, ledger.SourceRedeem, ledger.Metadata{
			"reservation_id": res.ID,
			"purpose":        res.Purpose,
		}, nil)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ReleaseExpired returns every lapsed hold. Status checks make re-runs no-ops.
func (r *Repository) ReleaseExpired(ctx context.Context, now time.Time) (int, error) {
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids,
		`SELECT id FROM coin_reservations WHERE status = 'held' AND expires_at < $1 ORDER BY id`,
		now); err != nil {
		return 0, err
	}

	released := 0
	for _, id := range ids {
		if err := r.Release(ctx, id); err != nil {
			if errors.Is(err, ErrNotHeld) {
				continue
			}
			logger.Error("failed to release expired reservation", "reservation_id", id, "error", err)
			continue
		}
		released++
	}
	return released, nil
}
