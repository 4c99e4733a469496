package wallet

import (
	"context"
	"time"

	"cashstore/internal/ledger"
	"cashstore/internal/logger"
	"cashstore/internal/metrics"
)

// Balancer is the slice of the ledger store the wallet service needs.
type Balancer interface {
	BalanceOf(ctx context.Context, userID int) (int64, error)
}

type Service interface {
	Read(ctx context.Context, userID int) (*Wallet, error)
	Reconcile(ctx context.Context, userID int) (*ReconcileResult, error)
	SweepAll(ctx context.Context) (*SweepStats, error)
}

type service struct {
	cache       Cache
	ledger      Balancer
	freshness   time.Duration
	itemTimeout time.Duration
}

func NewService(cache Cache, ledgerStore Balancer, freshness, itemTimeout time.Duration) Service {
	return &service{
		cache:       cache,
		ledger:      ledgerStore,
		freshness:   freshness,
		itemTimeout: itemTimeout,
	}
}

// Read is read-through with bounded staleness: a wallet not synced within the
// freshness window is reconciled inline before it is returned.
func (s *service) Read(ctx context.Context, userID int) (*Wallet, error) {
	w, err := s.cache.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.fresh(w) {
		return w, nil
	}

	if _, err := s.reconcile(ctx, userID, "read"); err != nil {
		// A stale-but-present cache beats a failed read.
		logger.Warn("inline reconciliation failed, serving cached balance",
			"user_id", userID, "error", err)
		return w, nil
	}
	return s.cache.GetOrCreate(ctx, userID)
}

func (s *service) fresh(w *Wallet) bool {
	return w.LastSyncedAt != nil && time.Since(*w.LastSyncedAt) < s.freshness
}

// Reconcile recomputes the true balance from the ledger and corrects the cache
// on any mismatch (exact equality is required). Coins held by an open
// reservation live in pending, not in the ledger, so the cached view of the
// ledger balance is available plus pending. Running it twice with no
// intervening writes is a no-op.
func (s *service) Reconcile(ctx context.Context, userID int) (*ReconcileResult, error) {
	return s.reconcile(ctx, userID, "manual")
}

func (s *service) reconcile(ctx context.Context, userID int, trigger string) (*ReconcileResult, error) {
	truth, err := s.ledger.BalanceOf(ctx, userID)
	if err != nil {
		metrics.RecordReconcile(trigger, "error")
		return nil, err
	}

	w, err := s.cache.GetOrCreate(ctx, userID)
	if err != nil {
		metrics.RecordReconcile(trigger, "error")
		return nil, err
	}

	cached := w.Available + w.Pending
	result := &ReconcileResult{
		UserID:        userID,
		LedgerBalance: truth,
		CacheBalance:  cached,
	}

	if cached == truth {
		if err := s.cache.StampSynced(ctx, userID); err != nil {
			metrics.RecordReconcile(trigger, "error")
			return nil, err
		}
		metrics.RecordReconcile(trigger, "clean")
		return result, nil
	}

	if err := s.cache.ApplyCorrection(ctx, userID, truth); err != nil {
		metrics.RecordReconcile(trigger, "error")
		return nil, err
	}

	result.Corrected = true
	metrics.RecordReconcile(trigger, "corrected")
	logger.Warn("wallet drift corrected",
		"user_id", userID,
		"cache_balance", cached,
		"ledger_balance", truth,
		"trigger", trigger,
	)
	return result, nil
}

// SweepAll reconciles every known wallet. Each item is bounded by its own
// timeout; a slow or failing wallet is logged and skipped, never aborts the
// batch.
func (s *service) SweepAll(ctx context.Context) (*SweepStats, error) {
	ids, err := s.cache.ListUserIDs(ctx)
	if err != nil {
		return nil, err
	}

	stats := &SweepStats{}
	for _, userID := range ids {
		itemCtx, cancel := context.WithTimeout(ctx, s.itemTimeout)
		result, err := s.reconcile(itemCtx, userID, "sweep")
		cancel()

		stats.Checked++
		if err != nil {
			stats.Failed++
			logger.Error("wallet sweep item failed", "user_id", userID, "error", err)
			continue
		}
		if result.Corrected {
			stats.Corrected++
		}
	}

	logger.Info("wallet sweep finished",
		"checked", stats.Checked, "corrected", stats.Corrected, "failed", stats.Failed)
	return stats, nil
}

var _ Balancer = (*ledger.Repository)(nil)
