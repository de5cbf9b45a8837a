package services

import (
	"context"
	"fmt"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

// EventListener pushes lot events to the WebSocket connections watching that lot.
// It can be fed by a remote subscriber or used directly as a local publisher.
type EventListener struct {
	connectionManager domain.ConnectionManager
	log               logger.Logger
}

func NewEventListener(connectionManager domain.ConnectionManager, log logger.Logger) *EventListener {
	return &EventListener{
		connectionManager: connectionManager,
		log:               log,
	}
}

func (el *EventListener) Start(ctx context.Context, subscriber domain.EventSubscriber) error {
	el.log.Info("Starting event listener")
	return subscriber.SubscribeToLotEvents(ctx, el.HandleLotEvent)
}

func (el *EventListener) PublishLotEvent(_ context.Context, event *domain.LotEvent) error {
	return el.HandleLotEvent(event)
}

func (el *EventListener) HandleLotEvent(event *domain.LotEvent) error {
	el.log.Debug("Handling lot event", "type", event.Type, "lot_id", event.LotID)

	switch event.Type {
	case domain.LotCreated:
		return nil
	case domain.BidAccepted:
		return el.connectionManager.BroadcastToLot(event.LotID, map[string]interface{}{
			"type":           "bid_update",
			"current_bid":    event.Amount.String(),
			"current_winner": event.BidderID,
			"timestamp":      event.Timestamp,
		})
	case domain.LotClosedEv:
		return el.handleLotClosed(event)
	}

	return fmt.Errorf("unknown event type %q", event.Type)
}

func (el *EventListener) handleLotClosed(event *domain.LotEvent) error {
	if err := el.connectionManager.BroadcastToLot(event.LotID, map[string]interface{}{
		"type":        "auction_ended",
		"final_price": event.Amount.String(),
		"winner":      event.BidderID,
		"timestamp":   event.Timestamp,
	}); err != nil {
		el.log.Error("Failed to broadcast lot closed event", "error", err)
		return err
	}

	if event.BidderID != "" {
		if err := el.connectionManager.NotifyUser(event.BidderID, map[string]interface{}{
			"type":        "auction_won",
			"lot_id":      event.LotID,
			"final_price": event.Amount.String(),
		}); err != nil {
			el.log.Warn("Failed to notify winner", "lot_id", event.LotID, "user_id", event.BidderID, "error", err)
		}
	}

	if err := el.connectionManager.CloseAndUnregisterConnections(event.LotID); err != nil {
		el.log.Error("Failed to finalize connections for lot", "lot_id", event.LotID, "error", err)
		return err
	}
	return nil
}
