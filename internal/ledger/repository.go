package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"cashstore/internal/logger"
	"cashstore/internal/metrics"
)

// balanceExpr derives the authoritative balance from the append-only log:
// earned + refunded + bonus - spent - expired.
const balanceExpr = `COALESCE(SUM(CASE WHEN kind IN ('earned','refunded','bonus') THEN amount ELSE -amount END), 0)`

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Append writes one coin movement. Appends for the same user are serialized on
// the wallet row lock so two concurrent calls can never snapshot the same
// resulting balance.
func (r *Repository) Append(ctx context.Context, userID int, kind Kind, amount int64, source Source, metadata Metadata) (*Entry, error) {
	return r.append(ctx, userID, kind, amount, source, metadata, nil)
}

// AppendExpiring is Append for earned coins that lapse at expiresAt.
func (r *Repository) AppendExpiring(ctx context.Context, userID int, amount int64, source Source, metadata Metadata, expiresAt time.Time) (*Entry, error) {
	return r.append(ctx, userID, KindEarned, amount, source, metadata, &expiresAt)
}

func (r *Repository) append(ctx context.Context, userID int, kind Kind, amount int64, source Source, metadata Metadata, expiresAt *time.Time) (*Entry, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	entry, err := r.AppendTx(ctx, tx, userID, kind, amount, source, metadata, expiresAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entry, nil
}

// AppendTx appends inside a caller-owned transaction so a caller can make the
// credit atomic with its own state change (achievement unlock, reservation
// capture). The caller commits; validation and per-user locking happen here.
func (r *Repository) AppendTx(ctx context.Context, tx *sqlx.Tx, userID int, kind Kind, amount int64, source Source, metadata Metadata, expiresAt *time.Time) (*Entry, error) {
	if amount <= 0 {
		metrics.RecordLedgerAppendFailure("invalid_amount")
		return nil, ErrInvalidAmount
	}
	if !kind.Valid() {
		metrics.RecordLedgerAppendFailure("unknown_kind")
		return nil, ErrUnknownKind
	}
	if !source.Valid() {
		metrics.RecordLedgerAppendFailure("unknown_source")
		return nil, ErrUnknownSource
	}

	walletID, err := lockWallet(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	var balance int64
	if err := tx.GetContext(ctx, &balance,
		`SELECT `+balanceExpr+` FROM ledger_entries WHERE user_id = $1`, userID); err != nil {
		return nil, err
	}

	newBalance := balance + kind.Sign()*amount
	if newBalance < 0 {
		metrics.RecordLedgerAppendFailure("insufficient_balance")
		return nil, ErrInsufficientBalance
	}

	entry := &Entry{
		UserID:           userID,
		Kind:             kind,
		Amount:           amount,
		Source:           source,
		ResultingBalance: newBalance,
		Metadata:         metadata,
		ExpiresAt:        expiresAt,
	}
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO ledger_entries (user_id, kind, amount, source, resulting_balance, metadata, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		userID, kind, amount, source, newBalance, metadata, expiresAt,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}

	// The cache refresh shares the tx: a failed statement aborts the whole
	// transaction, so the error fails the append rather than being swallowed.
	if err := r.syncCache(ctx, tx, walletID, newBalance, kind, amount, source); err != nil {
		return nil, err
	}

	metrics.RecordLedgerAppend(string(kind), string(source))
	return entry, nil
}

// lockWallet takes the per-user append lock, creating the wallet row on first
// use. The upsert path also acquires the row lock.
func lockWallet(ctx context.Context, tx *sqlx.Tx, userID int) (int, error) {
	var walletID int
	err := tx.GetContext(ctx, &walletID,
		`SELECT id FROM wallets WHERE user_id = $1 FOR UPDATE`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.GetContext(ctx, &walletID,
			`INSERT INTO wallets (user_id) VALUES ($1)
			 ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
			 RETURNING id`, userID)
	}
	if err != nil {
		return 0, err
	}
	return walletID, nil
}

func (r *Repository) syncCache(ctx context.Context, tx *sqlx.Tx, walletID int, newBalance int64, kind Kind, amount int64, source Source) error {
	earnedDelta := int64(0)
	spentDelta := int64(0)
	if kind.Sign() > 0 {
		earnedDelta = amount
	} else {
		spentDelta = amount
	}
	cashbackDelta := int64(0)
	if source == SourceCashback {
		cashbackDelta = kind.Sign() * amount
	}
	promoDelta := int64(0)
	if kind == KindBonus {
		promoDelta = amount
	}

	// Held coins stay in pending: available is the ledger balance minus holds.
	_, err := tx.ExecContext(ctx,
		`UPDATE wallets
		 SET available = $1 - pending,
		     total = $1,
		     cashback = cashback + $2,
		     promo = GREATEST(promo + $3, 0),
		     total_earned = total_earned + $4,
		     total_spent = total_spent + $5,
		     updated_at = NOW()
		 WHERE id = $6`,
		newBalance, cashbackDelta, promoDelta, earnedDelta, spentDelta, walletID)
	return err
}

// BalanceOfTx recomputes the balance inside a caller-owned transaction.
func (r *Repository) BalanceOfTx(ctx context.Context, tx *sqlx.Tx, userID int) (int64, error) {
	var balance int64
	err := tx.GetContext(ctx, &balance,
		`SELECT `+balanceExpr+` FROM ledger_entries WHERE user_id = $1`, userID)
	return balance, err
}

// BalanceOf recomputes the authoritative balance from the ledger.
func (r *Repository) BalanceOf(ctx context.Context, userID int) (int64, error) {
	var balance int64
	err := r.db.GetContext(ctx, &balance,
		`SELECT `+balanceExpr+` FROM ledger_entries WHERE user_id = $1`, userID)
	return balance, err
}

// HistoryOf returns the user's movements ordered by creation time ascending.
func (r *Repository) HistoryOf(ctx context.Context, userID int, f Filter) ([]Entry, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, user_id, kind, amount, source, resulting_balance, metadata, expires_at, expired_by, created_at
		FROM ledger_entries WHERE user_id = $1`)
	args := []interface{}{userID}

	if len(f.Kinds) > 0 {
		kinds := make([]string, len(f.Kinds))
		for i, k := range f.Kinds {
			kinds[i] = string(k)
		}
		args = append(args, pq.Array(kinds))
		fmt.Fprintf(&sb, " AND kind = ANY($%d)", len(args))
	}
	if len(f.Sources) > 0 {
		sources := make([]string, len(f.Sources))
		for i, s := range f.Sources {
			sources[i] = string(s)
		}
		args = append(args, pq.Array(sources))
		fmt.Fprintf(&sb, " AND source = ANY($%d)", len(args))
	}
	if f.Since != nil {
		args = append(args, *f.Since)
		fmt.Fprintf(&sb, " AND created_at >= $%d", len(args))
	}
	if f.Until != nil {
		args = append(args, *f.Until)
		fmt.Fprintf(&sb, " AND created_at < $%d", len(args))
	}

	sb.WriteString(" ORDER BY created_at ASC, id ASC")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}

	entries := []Entry{}
	if err := r.db.SelectContext(ctx, &entries, sb.String(), args...); err != nil {
		return nil, err
	}
	return entries, nil
}

// RebuildHistory replays the user's entries in order and repairs every
// resulting_balance snapshot that disagrees with the running sum. Returns the
// number of repaired rows.
func (r *Repository) RebuildHistory(ctx context.Context, userID int) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	walletID, err := lockWallet(ctx, tx, userID)
	if err != nil {
		return 0, err
	}

	var entries []Entry
	if err := tx.SelectContext(ctx, &entries,
		`SELECT id, user_id, kind, amount, source, resulting_balance, metadata, expires_at, expired_by, created_at
		 FROM ledger_entries WHERE user_id = $1
		 ORDER BY created_at ASC, id ASC`, userID); err != nil {
		return 0, err
	}

	repaired := 0
	running := int64(0)
	for _, e := range entries {
		running += e.Kind.Sign() * e.Amount
		if e.ResultingBalance == running {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE ledger_entries SET resulting_balance = $1 WHERE id = $2`,
			running, e.ID); err != nil {
			return 0, err
		}
		repaired++
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE wallets SET available = $1 - pending, total = $1, last_synced_at = NOW(), updated_at = NOW() WHERE id = $2`,
		running, walletID); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	if repaired > 0 {
		logger.Info("ledger history rebuilt", "user_id", userID, "repaired", repaired, "balance", running)
	}
	return repaired, nil
}

// ExpireCoins appends offsetting expired entries for earned coins past their
// expires_at. Consumed rows are stamped with the expiry entry id so a re-run
// never double-expires. The deduction is clamped at the current balance:
// already-spent coins cannot be expired again.
func (r *Repository) ExpireCoins(ctx context.Context, now time.Time) (*ExpiryStats, error) {
	var userIDs []int
	if err := r.db.SelectContext(ctx, &userIDs,
		`SELECT DISTINCT user_id FROM ledger_entries
		 WHERE kind = 'earned' AND expires_at IS NOT NULL AND expires_at < $1 AND expired_by IS NULL
		 ORDER BY user_id`, now); err != nil {
		return nil, err
	}

	stats := &ExpiryStats{}
	for _, userID := range userIDs {
		if err := r.expireForUser(ctx, userID, now, stats); err != nil {
			logger.Error("coin expiry failed for user", "user_id", userID, "error", err)
		}
	}
	return stats, nil
}

func (r *Repository) expireForUser(ctx context.Context, userID int, now time.Time, stats *ExpiryStats) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	walletID, err := lockWallet(ctx, tx, userID)
	if err != nil {
		return err
	}

	var lapsed []Entry
	if err := tx.SelectContext(ctx, &lapsed,
		`SELECT id, user_id, kind, amount, source, resulting_balance, metadata, expires_at, expired_by, created_at
		 FROM ledger_entries
		 WHERE user_id = $1 AND kind = 'earned' AND expires_at IS NOT NULL AND expires_at < $2 AND expired_by IS NULL
		 ORDER BY created_at ASC, id ASC`, userID, now); err != nil {
		return err
	}
	if len(lapsed) == 0 {
		return tx.Commit()
	}

	var balance int64
	if err := tx.GetContext(ctx, &balance,
		`SELECT `+balanceExpr+` FROM ledger_entries WHERE user_id = $1`, userID); err != nil {
		return err
	}

	var lapsedSum int64
	ids := make([]int64, len(lapsed))
	for i, e := range lapsed {
		lapsedSum += e.Amount
		ids[i] = e.ID
	}
	amount := lapsedSum
	if amount > balance {
		amount = balance
	}

	// expiryID 0 marks rows consumed without a deduction (coins were
	// already spent before they lapsed).
	var expiryID int64
	if amount > 0 {
		newBalance := balance - amount
		if err := tx.GetContext(ctx, &expiryID,
			`INSERT INTO ledger_entries (user_id, kind, amount, source, resulting_balance, metadata)
			 VALUES ($1, 'expired', $2, 'expiry', $3, $4)
			 RETURNING id`,
			userID, amount, newBalance, Metadata{"lapsed_entries": len(lapsed)}); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE wallets SET available = $1 - pending, total = $1, total_spent = total_spent + $2, updated_at = NOW() WHERE id = $3`,
			newBalance, amount, walletID); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE ledger_entries SET expired_by = $1 WHERE id = ANY($2)`,
		expiryID, pq.Array(ids)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	stats.UsersAffected++
	stats.CoinsExpired += amount
	stats.EntriesMarked += len(lapsed)
	if amount > 0 {
		metrics.RecordLedgerAppend(string(KindExpired), string(SourceExpiry))
	}
	return nil
}
