package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"cashstore/internal/ledger"
	"cashstore/internal/logger"
	"cashstore/internal/metrics"
)

// Appender is the slice of the ledger store webhooks credit through.
type Appender interface {
	Append(ctx context.Context, userID int, kind ledger.Kind, amount int64, source ledger.Source, metadata ledger.Metadata) (*ledger.Entry, error)
}

// Event is the gateway notification envelope.
type Event struct {
	ID             string `json:"id"`
	Type           string `json:"event"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	Payload        struct {
		Payment struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

type PaymentEntity struct {
	ID     string            `json:"id"`
	Amount int64             `json:"amount"`
	Notes  map[string]string `json:"notes"`
}

type Service struct {
	guard  Guard
	ledger Appender
	secret string
}

func NewService(guard Guard, ledgerStore Appender, secret string) *Service {
	return &Service{guard: guard, ledger: ledgerStore, secret: secret}
}

// Handle runs the full intake: signature check, dedup, side effects, status.
// Duplicates are accepted (stops upstream retries) and mutate nothing.
func (s *Service) Handle(ctx context.Context, body []byte, signature, ip, userAgent string) (*Result, error) {
	if !s.verifySignature(body, signature) {
		metrics.RecordWebhookEvent("unknown", "bad_signature")
		return nil, ErrInvalidSignature
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		metrics.RecordWebhookEvent("unknown", "malformed")
		return nil, ErrMalformedPayload
	}

	eventID := event.ID
	if eventID == "" {
		eventID = event.Payload.Payment.Entity.ID
	}
	if eventID == "" {
		metrics.RecordWebhookEvent(event.Type, "malformed")
		return nil, ErrMalformedPayload
	}

	_, duplicate, err := s.guard.Record(ctx, RecordParams{
		EventID:        eventID,
		EventType:      event.Type,
		SubscriptionID: event.SubscriptionID,
		Signature:      signature,
		IP:             ip,
		UserAgent:      userAgent,
	})
	if err != nil {
		return nil, err
	}
	if duplicate {
		logger.Info("duplicate webhook delivery skipped", "event_id", eventID, "event_type", event.Type)
		metrics.RecordWebhookEvent(event.Type, "duplicate")
		return &Result{Accepted: true, Reason: "duplicate"}, nil
	}

	if err := s.process(ctx, &event); err != nil {
		if markErr := s.guard.MarkFailed(ctx, eventID, err.Error()); markErr != nil {
			logger.Error("failed to mark webhook event failed", "event_id", eventID, "error", markErr)
		}
		metrics.RecordWebhookEvent(event.Type, "failed")
		return nil, err
	}

	if err := s.guard.MarkSucceeded(ctx, eventID); err != nil {
		logger.Error("failed to mark webhook event succeeded", "event_id", eventID, "error", err)
	}
	metrics.RecordWebhookEvent(event.Type, "success")
	return &Result{Accepted: true}, nil
}

func (s *Service) verifySignature(body []byte, signature string) bool {
	if s.secret == "" {
		// Signature enforcement off (local/dev).
		return true
	}
	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (s *Service) process(ctx context.Context, event *Event) error {
	switch event.Type {
	case "payment.captured":
		return s.creditPayment(ctx, event)
	default:
		// Unhandled event types are acknowledged without side effects.
		logger.Debug("ignoring webhook event type", "event_type", event.Type)
		return nil
	}
}

func (s *Service) creditPayment(ctx context.Context, event *Event) error {
	entity := event.Payload.Payment.Entity

	userID, err := strconv.Atoi(entity.Notes["user_id"])
	if err != nil || userID <= 0 {
		return fmt.Errorf("payment %s: %w: missing user_id note", entity.ID, ErrMalformedPayload)
	}

	coins := entity.Amount
	if c, ok := entity.Notes["coins"]; ok {
		coins, err = strconv.ParseInt(c, 10, 64)
		if err != nil {
			return fmt.Errorf("payment %s: %w: bad coins note", entity.ID, ErrMalformedPayload)
		}
	}

	_, err = s.ledger.Append(ctx, userID, ledger.KindEarned, coins, ledger.SourcePayment, ledger.Metadata{
		"payment_id": entity.ID,
		"event_id":   event.ID,
	})
	if err != nil {
		return fmt.Errorf("crediting payment %s: %w", entity.ID, err)
	}

	logger.Info("payment credited", "user_id", userID, "coins", coins, "payment_id", entity.ID)
	return nil
}
