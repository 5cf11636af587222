package services

import (
	"context"
	"fmt"

	"havenledger-server/src/models"

	"go.uber.org/zap"
)

type EventStore interface {
	// ApplyGatewayEvent records the event id and applies its effect in one
	// transaction. It reports false when the id was already recorded.
	ApplyGatewayEvent(ctx context.Context, event models.GatewayEvent) (bool, error)
}

type ItemSyncer interface {
	SyncByItemID(ctx context.Context, itemID string) (*SyncResult, error)
}

// BankWebhook is the subset of a bank provider webhook body acted on here.
type BankWebhook struct {
	WebhookType string `json:"webhook_type"`
	WebhookCode string `json:"webhook_code"`
	ItemID      string `json:"item_id"`
	Error       *struct {
		ErrorCode    string `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"error,omitempty"`
}

const (
	bankWebhookTransactions = "TRANSACTIONS"
	bankWebhookItem         = "ITEM"
	bankSyncUpdates         = "SYNC_UPDATES_AVAILABLE"
)

type EventService struct {
	store  EventStore
	syncer ItemSyncer
	logger *zap.Logger
}

func NewEventService(store EventStore, syncer ItemSyncer, logger *zap.Logger) *EventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{store: store, syncer: syncer, logger: logger}
}

// ApplyGatewayEvent applies a payment provider event at most once per event id.
// Redelivered events return applied=false and no error.
func (s *EventService) ApplyGatewayEvent(ctx context.Context, event models.GatewayEvent) (bool, error) {
	if event.EventID == "" {
		return false, fmt.Errorf("%w: event id is required", models.ErrInvalidInput)
	}
	applied, err := s.store.ApplyGatewayEvent(ctx, event)
	if err != nil {
		return false, fmt.Errorf("apply event %s: %w", event.EventID, err)
	}
	if !applied {
		s.logger.Debug("duplicate gateway event", zap.String("event_id", event.EventID))
		return false, nil
	}
	s.logger.Info("applied gateway event",
		zap.String("event_id", event.EventID),
		zap.String("type", event.Type),
		zap.String("object_id", event.ObjectID),
	)
	return true, nil
}

// HandleBankWebhook starts a sync when the provider reports new transactions.
// It reports whether a sync was run.
func (s *EventService) HandleBankWebhook(ctx context.Context, hook BankWebhook) (bool, error) {
	log := s.logger.With(
		zap.String("webhook_type", hook.WebhookType),
		zap.String("webhook_code", hook.WebhookCode),
		zap.String("item_id", hook.ItemID),
	)

	switch {
	case hook.WebhookType == bankWebhookTransactions && hook.WebhookCode == bankSyncUpdates:
		if hook.ItemID == "" {
			return false, fmt.Errorf("%w: item_id is required", models.ErrInvalidInput)
		}
		result, err := s.syncer.SyncByItemID(ctx, hook.ItemID)
		if err != nil {
			return true, err
		}
		log.Info("webhook sync complete", zap.Int("added", result.Added))
		return true, nil
	case hook.WebhookType == bankWebhookItem && hook.Error != nil:
		log.Warn("bank item error",
			zap.String("error_code", hook.Error.ErrorCode),
			zap.String("error_message", hook.Error.ErrorMessage),
		)
	default:
		log.Debug("ignoring bank webhook")
	}
	return false, nil
}
