package gamification

import (
	"context"

	"cashstore/internal/ledger"
)

type Store interface {
	DefinitionsFor(ctx context.Context, eventType EventType) ([]Definition, error)
	AllDefinitions(ctx context.Context) ([]Definition, error)
	DefinitionByCode(ctx context.Context, code string) (*Definition, error)
	RecordActivity(ctx context.Context, userID int, eventType EventType, amount int64, metadata ledger.Metadata) error
	ActivityHistory(ctx context.Context, userID int) ([]ActivityEvent, error)
	ApplyProgress(ctx context.Context, userID int, def Definition, value int64, absolute bool) (bool, error)
	Claim(ctx context.Context, userID, definitionID int) (*Progress, error)
	ListProgress(ctx context.Context, userID int) ([]UserProgress, error)
}

var _ Store = (*Repository)(nil)
