package gamification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"cashstore/internal/ledger"
	"cashstore/internal/logger"
	"cashstore/internal/metrics"
	"cashstore/internal/streak"
)

const (
	maxApplyAttempts = 3
	retryBackoff     = 50 * time.Millisecond

	// Every full week of consecutive activity earns one freeze window.
	freezeMilestone = 7
)

// Notifier pushes unlock notifications to the out-of-process feed. A nil
// notifier disables them.
type Notifier interface {
	RewardUnlocked(ctx context.Context, userID int, code string, coins int64)
}

type Service interface {
	TriggerEvent(ctx context.Context, userID int, eventType EventType, metadata map[string]interface{}) error
	BatchTrigger(ctx context.Context, userID int, events []Event) error
	Recalculate(ctx context.Context, userID int) error
	Claim(ctx context.Context, userID int, code string) (*Progress, error)
	ListProgress(ctx context.Context, userID int) ([]UserProgress, error)
}

type service struct {
	repo        Store
	streaks     streak.Tracker
	notifier    Notifier
	freezeGrant time.Duration
}

// NewService wires the progress store, the streak tracker and the unlock
// notifier. freezeGrant is the insurance window granted at each weekly streak
// milestone; zero disables grants.
func NewService(repo Store, streaks streak.Tracker, notifier Notifier, freezeGrant time.Duration) Service {
	return &service{repo: repo, streaks: streaks, notifier: notifier, freezeGrant: freezeGrant}
}

// TriggerEvent maps one domain event onto every subscribed definition. A
// definition that is already unlocked is a successful no-op; a definition
// whose counter first crosses its target unlocks exactly once and credits the
// reward atomically with the unlock.
func (s *service) TriggerEvent(ctx context.Context, userID int, eventType EventType, metadata map[string]interface{}) error {
	if !eventType.Valid() {
		return ErrUnknownEventType
	}
	metrics.RecordTriggerEvent(string(eventType))

	amount := amountFrom(metadata)
	if err := s.repo.RecordActivity(ctx, userID, eventType, amount, ledger.Metadata(metadata)); err != nil {
		return fmt.Errorf("recording activity: %w", err)
	}

	currentStreak := 0
	if eventType == EventLogin {
		st, err := s.streaks.Touch(ctx, userID, time.Now())
		if err != nil {
			logger.Error("streak touch failed", "user_id", userID, "error", err)
		} else {
			currentStreak = st.Current
			s.grantFreeze(ctx, userID, st.Current)
		}
	}

	defs, err := s.repo.DefinitionsFor(ctx, eventType)
	if err != nil {
		return fmt.Errorf("loading definitions: %w", err)
	}

	var firstErr error
	for _, def := range defs {
		value, absolute := progressValue(def, amount, currentStreak)
		if value <= 0 {
			continue
		}

		unlocked, err := s.applyWithRetry(ctx, userID, def, value, absolute)
		if err != nil {
			logger.Error("progress update failed",
				"user_id", userID, "definition", def.Code, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if unlocked {
			logger.Info("definition unlocked",
				"user_id", userID, "definition", def.Code, "kind", def.Kind, "reward_coins", def.RewardCoins)
			if s.notifier != nil {
				s.notifier.RewardUnlocked(ctx, userID, def.Code, def.RewardCoins)
			}
		}
	}
	return firstErr
}

// grantFreeze extends streak insurance at every weekly milestone. A failed
// grant never fails the triggering event.
func (s *service) grantFreeze(ctx context.Context, userID, currentStreak int) {
	if s.freezeGrant <= 0 || currentStreak <= 0 || currentStreak%freezeMilestone != 0 {
		return
	}
	until := time.Now().Add(s.freezeGrant)
	if err := s.streaks.SetFreeze(ctx, userID, until); err != nil {
		logger.Error("streak freeze grant failed", "user_id", userID, "error", err)
		return
	}
	logger.Info("streak freeze granted", "user_id", userID, "streak", currentStreak, "until", until)
}

// applyWithRetry retries bounded times on serialization/deadlock conflicts.
func (s *service) applyWithRetry(ctx context.Context, userID int, def Definition, value int64, absolute bool) (bool, error) {
	var lastErr error
	for attempt := 1; attempt <= maxApplyAttempts; attempt++ {
		unlocked, err := s.repo.ApplyProgress(ctx, userID, def, value, absolute)
		if err == nil {
			return unlocked, nil
		}
		lastErr = err
		if !isRetryableConflict(err) {
			return false, err
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
	return false, fmt.Errorf("progress update exhausted retries: %w", lastErr)
}

func isRetryableConflict(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// serialization_failure, deadlock_detected
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

func progressValue(def Definition, amount int64, currentStreak int) (int64, bool) {
	switch def.Mode {
	case ModeSum:
		return amount, false
	case ModeStreak:
		return int64(currentStreak), true
	default:
		return 1, false
	}
}

func amountFrom(metadata map[string]interface{}) int64 {
	v, ok := metadata["amount"]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	}
	return 0
}

// BatchTrigger replays events in order. Already-unlocked definitions are
// no-ops, so re-running the same history grants nothing twice.
func (s *service) BatchTrigger(ctx context.Context, userID int, events []Event) error {
	for i, ev := range events {
		if err := s.TriggerEvent(ctx, userID, ev.Type, ev.Metadata); err != nil {
			return fmt.Errorf("batch event %d (%s): %w", i, ev.Type, err)
		}
	}
	return nil
}

// Recalculate re-derives every progress counter from the raw activity log.
// Unlocked and claimed rows are untouched (ApplyProgress skips them), so a
// repair run never re-credits.
func (s *service) Recalculate(ctx context.Context, userID int) error {
	history, err := s.repo.ActivityHistory(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading activity history: %w", err)
	}

	defs, err := s.repo.AllDefinitions(ctx)
	if err != nil {
		return fmt.Errorf("loading definitions: %w", err)
	}

	counts := map[EventType]int64{}
	sums := map[EventType]int64{}
	for _, ev := range history {
		counts[ev.EventType]++
		sums[ev.EventType] += ev.Amount
	}

	var longestStreak int
	if st, err := s.streaks.GetByUser(ctx, userID); err == nil {
		longestStreak = st.Longest
	}

	for _, def := range defs {
		var computed int64
		switch def.Mode {
		case ModeSum:
			computed = sums[def.EventType]
		case ModeStreak:
			computed = int64(longestStreak)
		default:
			computed = counts[def.EventType]
		}

		if _, err := s.repo.ApplyProgress(ctx, userID, def, computed, true); err != nil {
			return fmt.Errorf("recalculating %s: %w", def.Code, err)
		}
	}

	logger.Info("gamification progress recalculated", "user_id", userID, "definitions", len(defs))
	return nil
}

func (s *service) Claim(ctx context.Context, userID int, code string) (*Progress, error) {
	def, err := s.repo.DefinitionByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.repo.Claim(ctx, userID, def.ID)
}

func (s *service) ListProgress(ctx context.Context, userID int) ([]UserProgress, error) {
	return s.repo.ListProgress(ctx, userID)
}
