package ledger

import (
	"context"
	"time"
)

type Store interface {
	Append(ctx context.Context, userID int, kind Kind, amount int64, source Source, metadata Metadata) (*Entry, error)
	AppendExpiring(ctx context.Context, userID int, amount int64, source Source, metadata Metadata, expiresAt time.Time) (*Entry, error)
	BalanceOf(ctx context.Context, userID int) (int64, error)
	HistoryOf(ctx context.Context, userID int, f Filter) ([]Entry, error)
	RebuildHistory(ctx context.Context, userID int) (int, error)
	ExpireCoins(ctx context.Context, now time.Time) (*ExpiryStats, error)
}

var _ Store = (*Repository)(nil)
