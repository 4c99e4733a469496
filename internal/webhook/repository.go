package webhook

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"cashstore/internal/db"
)

const eventColumns = `id, event_id, event_type, subscription_id, signature, status, retry_count, error_message, ip, user_agent, processed_at, expires_at`

// Repository is the idempotency guard. Record relies on the event_id unique
// index, so correctness holds across process instances without any in-process
// lock.
type Repository struct {
	db        *sqlx.DB
	retention time.Duration
}

func NewRepository(db *sqlx.DB, retention time.Duration) *Repository {
	return &Repository{db: db, retention: retention}
}

// Record inserts the delivery; a uniqueness conflict means the event was
// already processed. When two concurrent deliveries race, exactly one insert
// wins and the loser observes duplicate=true.
func (r *Repository) Record(ctx context.Context, p RecordParams) (*ProcessedEvent, bool, error) {
	ev := &ProcessedEvent{}
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO processed_webhook_events (event_id, event_type, subscription_id, signature, status, ip, user_agent, expires_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, 'pending', NULLIF($5, ''), NULLIF($6, ''), NOW() + $7::interval)
		 ON CONFLICT (event_id) DO NOTHING
		 RETURNING `+eventColumns,
		p.EventID, p.EventType, p.SubscriptionID, p.Signature, p.IP, p.UserAgent, r.retention.String(),
	).StructScan(ev)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return ev, false, nil
}

func (r *Repository) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	return db.Exists(ctx, r.db,
		`SELECT EXISTS(SELECT 1 FROM processed_webhook_events WHERE event_id = $1)`, eventID)
}

func (r *Repository) MarkSucceeded(ctx context.Context, eventID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE processed_webhook_events SET status = 'success' WHERE event_id = $1`, eventID)
	return err
}

// MarkFailed transitions to failed and counts the attempt. A failed event
// still counts as processed: automatic replays must not retry side effects.
func (r *Repository) MarkFailed(ctx context.Context, eventID, errorMessage string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE processed_webhook_events
		 SET status = 'failed', retry_count = retry_count + 1, error_message = $2
		 WHERE event_id = $1`,
		eventID, errorMessage)
	return err
}

// PurgeExpired deletes entries past the retention horizon. The horizon must
// exceed the gateway's maximum replay window or replays double-credit.
func (r *Repository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM processed_webhook_events WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
