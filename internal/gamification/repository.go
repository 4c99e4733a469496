package gamification

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"cashstore/internal/ledger"
	"cashstore/internal/metrics"
)

const definitionColumns = `id, code, title, kind, event_type, mode, target, reward_coins, active`

type Repository struct {
	db     *sqlx.DB
	ledger *ledger.Repository
}

func NewRepository(db *sqlx.DB, ledgerRepo *ledger.Repository) *Repository {
	return &Repository{db: db, ledger: ledgerRepo}
}

func (r *Repository) DefinitionsFor(ctx context.Context, eventType EventType) ([]Definition, error) {
	var defs []Definition
	err := r.db.SelectContext(ctx, &defs,
		`SELECT `+definitionColumns+` FROM gamification_definitions
		 WHERE event_type = $1 AND active ORDER BY id`, eventType)
	if err != nil {
		return nil, err
	}
	return defs, nil
}

func (r *Repository) AllDefinitions(ctx context.Context) ([]Definition, error) {
	var defs []Definition
	err := r.db.SelectContext(ctx, &defs,
		`SELECT `+definitionColumns+` FROM gamification_definitions WHERE active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return defs, nil
}

func (r *Repository) DefinitionByCode(ctx context.Context, code string) (*Definition, error) {
	def := &Definition{}
	err := r.db.GetContext(ctx, def,
		`SELECT `+definitionColumns+` FROM gamification_definitions WHERE code = $1`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDefinitionNotFound
	}
	if err != nil {
		return nil, err
	}
	return def, nil
}

// RecordActivity appends to the raw activity log Recalculate derives from.
func (r *Repository) RecordActivity(ctx context.Context, userID int, eventType EventType, amount int64, metadata ledger.Metadata) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO activity_events (user_id, event_type, amount, metadata) VALUES ($1, $2, $3, $4)`,
		userID, eventType, amount, metadata)
	return err
}

func (r *Repository) ActivityHistory(ctx context.Context, userID int) ([]ActivityEvent, error) {
	var events []ActivityEvent
	err := r.db.SelectContext(ctx, &events,
		`SELECT id, user_id, event_type, amount, metadata, created_at
		 FROM activity_events WHERE user_id = $1 ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, err
	}
	return events, nil
}

// ApplyProgress advances (or, when absolute, overwrites) the user's counter
// for one definition and, on the first threshold crossing, unlocks it and
// credits the reward in the same transaction. The unlock UPDATE's WHERE
// state='locked' makes the crossing exactly-once: the losing racer updates
// zero rows. If the ledger credit fails, the whole tx rolls back and the
// definition stays locked.
func (r *Repository) ApplyProgress(ctx context.Context, userID int, def Definition, value int64, absolute bool) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	assignment := `gamification_progress.progress + EXCLUDED.progress`
	if absolute {
		assignment = `EXCLUDED.progress`
	}

	// The DO UPDATE arm takes the row lock, serializing concurrent triggers
	// for the same (user, definition) until commit. Already-unlocked rows
	// fail the WHERE and return nothing: the trigger is a no-op.
	var progress int64
	err = tx.GetContext(ctx, &progress,
		`INSERT INTO gamification_progress (user_id, definition_id, progress, target)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, definition_id) DO UPDATE
		 SET progress = `+assignment+`, updated_at = NOW()
		 WHERE gamification_progress.state = 'locked'
		 RETURNING progress`,
		userID, def.ID, value, def.Target)
	if errors.Is(err, sql.ErrNoRows) {
		return false, tx.Commit()
	}
	if err != nil {
		return false, err
	}

	if progress < def.Target {
		return false, tx.Commit()
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE gamification_progress
		 SET state = 'unlocked', unlocked_at = NOW(), updated_at = NOW()
		 WHERE user_id = $1 AND definition_id = $2 AND state = 'locked'`,
		userID, def.ID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, tx.Commit()
	}

	if def.RewardCoins > 0 {
		_, err = r.ledger.AppendTx(ctx, tx, userID, ledger.KindEarned, def.RewardCoins, def.Kind.LedgerSource(), ledger.Metadata{
			"definition": def.Code,
			"kind":       string(def.Kind),
		}, nil)
		if err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	metrics.RecordUnlock(string(def.Kind))
	return true, nil
}

// Claim flips unlocked -> claimed, one way.
func (r *Repository) Claim(ctx context.Context, userID, definitionID int) (*Progress, error) {
	p := &Progress{}
	err := r.db.QueryRowxContext(ctx,
		`UPDATE gamification_progress
		 SET state = 'claimed', claimed_at = NOW(), updated_at = NOW()
		 WHERE user_id = $1 AND definition_id = $2 AND state = 'unlocked'
		 RETURNING id, user_id, definition_id, progress, target, state, unlocked_at, claimed_at, created_at, updated_at`,
		userID, definitionID,
	).StructScan(p)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var state State
	err = r.db.GetContext(ctx, &state,
		`SELECT state FROM gamification_progress WHERE user_id = $1 AND definition_id = $2`,
		userID, definitionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotUnlocked
	}
	if err != nil {
		return nil, err
	}
	if state == StateClaimed {
		return nil, ErrAlreadyClaimed
	}
	return nil, ErrNotUnlocked
}

// ListProgress returns every active definition with the user's progress row
// (zero progress when the user has none yet).
func (r *Repository) ListProgress(ctx context.Context, userID int) ([]UserProgress, error) {
	var rows []UserProgress
	err := r.db.SelectContext(ctx, &rows,
		`SELECT d.id, d.code, d.title, d.kind, d.event_type, d.mode, d.target, d.reward_coins, d.active,
		        COALESCE(p.progress, 0) AS progress,
		        COALESCE(p.state, 'locked') AS state,
		        p.unlocked_at, p.claimed_at
		 FROM gamification_definitions d
		 LEFT JOIN gamification_progress p ON p.definition_id = d.id AND p.user_id = $1
		 WHERE d.active
		 ORDER BY d.id`, userID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
