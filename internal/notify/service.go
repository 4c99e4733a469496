package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"cashstore/internal/logger"
	"cashstore/internal/metrics"
)

const (
	queueKey  = "notifications"
	failedKey = "notifications:failed"
)

type Notification struct {
	UserID  int       `json:"user_id"`
	Kind    string    `json:"kind"`
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	Coins   int64     `json:"coins,omitempty"`
	Tries   int       `json:"tries"`
	Created time.Time `json:"created"`
}

// Sender delivers a notification to the user's device or inbox.
type Sender interface {
	Deliver(ctx context.Context, n Notification) error
}

// LogSender is the default delivery path until a push provider is wired in.
type LogSender struct{}

func (LogSender) Deliver(_ context.Context, n Notification) error {
	logger.Info("notification delivered", "user_id", n.UserID, "kind", n.Kind, "title", n.Title)
	return nil
}

type Service struct {
	redis  *redis.Client
	sender Sender
}

func New(redisAddr string, sender Sender) *Service {
	if sender == nil {
		sender = LogSender{}
	}
	return &Service{
		redis: redis.NewClient(&redis.Options{
			Addr: redisAddr,
		}),
		sender: sender,
	}
}

func (s *Service) Queue(ctx context.Context, n Notification) error {
	n.Tries = 0
	n.Created = time.Now()

	data, err := json.Marshal(n)
	if err != nil {
		logger.Errorf("Failed to marshal notification: %v", err)
		return err
	}

	if err := s.redis.LPush(ctx, queueKey, data).Err(); err != nil {
		logger.Errorf("Failed to queue notification for user %d: %v", n.UserID, err)
		return err
	}

	metrics.NotificationsQueuedTotal.WithLabelValues(n.Kind, "queued").Inc()
	logger.Infof("Notification queued: %s for user %d", n.Kind, n.UserID)
	return nil
}

// RewardUnlocked enqueues the unlock congratulation for an earned reward.
func (s *Service) RewardUnlocked(ctx context.Context, userID int, title string, coins int64) error {
	return s.Queue(ctx, Notification{
		UserID: userID,
		Kind:   "reward_unlocked",
		Title:  "Reward unlocked!",
		Body:   "You earned \"" + title + "\". Claim your coins in the app.",
		Coins:  coins,
	})
}

func (s *Service) Start(ctx context.Context) {
	logger.Info("Notification service started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Notification service stopped")
			return
		default:
			s.processNext(ctx)
		}
	}
}

func (s *Service) processNext(ctx context.Context) {
	result, err := s.redis.BRPop(ctx, 2*time.Second, queueKey).Result()
	if err != nil {
		return
	}

	var n Notification
	if err := json.Unmarshal([]byte(result[1]), &n); err != nil {
		logger.Errorf("Bad notification data: %v", err)
		return
	}

	n.Tries++
	if err := s.sender.Deliver(ctx, n); err != nil {
		logger.Errorf("Failed to deliver notification to user %d: %v", n.UserID, err)

		if n.Tries < 3 {
			time.Sleep(5 * time.Second)
			data, _ := json.Marshal(n)
			s.redis.LPush(context.Background(), queueKey, data)
			logger.Infof("Retrying notification for user %d (attempt %d)", n.UserID, n.Tries+1)
		} else {
			logger.Errorf("Notification for user %d failed after 3 attempts", n.UserID)
			s.saveFailed(n, err)
		}
		return
	}
}

func (s *Service) saveFailed(n Notification, err error) {
	failed := map[string]interface{}{
		"notification": n,
		"error":        err.Error(),
		"time":         time.Now(),
	}
	data, _ := json.Marshal(failed)
	s.redis.LPush(context.Background(), failedKey, data)
	logger.Errorf("Notification moved to failed queue: user %d", n.UserID)
}

func (s *Service) QueueLength(ctx context.Context) int64 {
	length, _ := s.redis.LLen(ctx, queueKey).Result()
	metrics.NotificationQueueLength.Set(float64(length))
	return length
}

func (s *Service) Close() error {
	return s.redis.Close()
}
