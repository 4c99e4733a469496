package webhook

import (
	"context"
	"time"
)

// Guard is the dedup surface the intake service depends on.
type Guard interface {
	Record(ctx context.Context, p RecordParams) (*ProcessedEvent, bool, error)
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	MarkSucceeded(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID, errorMessage string) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

var _ Guard = (*Repository)(nil)
