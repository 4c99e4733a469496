package wallet

import "context"

type Cache interface {
	GetOrCreate(ctx context.Context, userID int) (*Wallet, error)
	ApplyCorrection(ctx context.Context, userID int, balance int64) error
	StampSynced(ctx context.Context, userID int) error
	ListUserIDs(ctx context.Context) ([]int, error)
}

var _ Cache = (*Repository)(nil)
