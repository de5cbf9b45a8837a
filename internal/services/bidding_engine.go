package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/internal/metrics"
	"auction-engine/pkg/logger"
	"auction-engine/pkg/utils"

	"github.com/shopspring/decimal"
)

const DefaultMaxBidRetries = 5

type CreateAuctionInput struct {
	ItemName    string
	Description string
	BasePrice   decimal.Decimal
	SellerID    string
	Duration    time.Duration
}

type BiddingEngine struct {
	store      domain.LotStore
	clock      domain.Clock
	eventPub   domain.EventPublisher
	metrics    *metrics.Metrics
	maxRetries int
	log        logger.Logger
}

// NewBiddingEngine builds an engine over store. eventPub and m may be nil.
func NewBiddingEngine(
	store domain.LotStore,
	clock domain.Clock,
	eventPub domain.EventPublisher,
	m *metrics.Metrics,
	maxRetries int,
	log logger.Logger,
) *BiddingEngine {
	if maxRetries < 0 {
		maxRetries = DefaultMaxBidRetries
	}
	return &BiddingEngine{
		store:      store,
		clock:      clock,
		eventPub:   eventPub,
		metrics:    m,
		maxRetries: maxRetries,
		log:        log,
	}
}

func (e *BiddingEngine) CreateAuction(ctx context.Context, in CreateAuctionInput) (*domain.Lot, error) {
	switch {
	case strings.TrimSpace(in.ItemName) == "":
		return nil, fmt.Errorf("item name is required: %w", domain.ErrInvalidArgument)
	case in.SellerID == "":
		return nil, fmt.Errorf("seller id is required: %w", domain.ErrInvalidArgument)
	case in.Duration <= 0:
		return nil, fmt.Errorf("duration must be positive: %w", domain.ErrInvalidArgument)
	case in.Duration > domain.MaxLotDuration:
		return nil, fmt.Errorf("duration exceeds %s: %w", domain.MaxLotDuration, domain.ErrInvalidArgument)
	}
	if err := domain.ValidateAmount(in.BasePrice); err != nil {
		return nil, fmt.Errorf("base price: %w", err)
	}
	if in.BasePrice.IsNegative() {
		return nil, fmt.Errorf("base price must not be negative: %w", domain.ErrInvalidArgument)
	}

	now := e.clock.Now()
	lot := &domain.Lot{
		ID:                utils.GenerateID("lot"),
		ItemName:          strings.TrimSpace(in.ItemName),
		Description:       in.Description,
		SellerID:          in.SellerID,
		BasePrice:         in.BasePrice,
		CurrentHighestBid: in.BasePrice,
		Bids:              []domain.Bid{},
		EndTime:           now.Add(in.Duration),
		Status:            domain.LotOpen,
		CreatedAt:         now,
	}

	id, err := e.store.Create(ctx, lot)
	if err != nil {
		return nil, fmt.Errorf("create lot: %w", err)
	}
	lot.ID = id

	e.metrics.LotCreated()
	e.log.Info("Lot created", "lot_id", id, "seller_id", in.SellerID,
		"base_price", in.BasePrice.String(), "end_time", lot.EndTime)

	e.publish(ctx, &domain.LotEvent{
		Type:      domain.LotCreated,
		LotID:     id,
		BidderID:  "",
		Amount:    in.BasePrice,
		Timestamp: now,
	})

	return lot, nil
}

// PlaceBid accepts the bid only as a strict raise over the lot's current highest bid,
// and only before the lot's end time. A stale read is retried against fresh state up to
// maxRetries times before the bid is rejected with ErrContention.
func (e *BiddingEngine) PlaceBid(ctx context.Context, lotID, bidderID string, amount decimal.Decimal) (*domain.Bid, error) {
	// amounts a store cannot hold exactly are refused before anything formats them
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, e.reject(lotID, bidderID, "", err)
	}
	if bidderID == "" {
		return nil, e.reject(lotID, bidderID, amount.String(), fmt.Errorf("bidder id is required: %w", domain.ErrInvalidArgument))
	}

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			e.metrics.Retry()
		}

		lot, err := e.store.Get(ctx, lotID)
		if err != nil {
			return nil, e.reject(lotID, bidderID, amount.String(), err)
		}

		now := e.clock.Now()
		if lot.Status == domain.LotOpen && lot.Expired(now) {
			e.closeLazily(ctx, lotID, now)
			return nil, e.reject(lotID, bidderID, amount.String(), fmt.Errorf("lot %s: %w", lotID, domain.ErrClosed))
		}
		if lot.Status == domain.LotClosed {
			return nil, e.reject(lotID, bidderID, amount.String(), fmt.Errorf("lot %s: %w", lotID, domain.ErrClosed))
		}
		if amount.LessThanOrEqual(lot.CurrentHighestBid) {
			return nil, e.reject(lotID, bidderID, amount.String(), fmt.Errorf("%s <= %s: %w",
				amount.String(), lot.CurrentHighestBid.String(), domain.ErrBidTooLow))
		}

		bid := domain.Bid{BidderID: bidderID, Amount: amount, Timestamp: now}
		err = e.store.CommitBid(ctx, lotID, lot.CurrentHighestBid, bid)
		switch {
		case err == nil:
			e.metrics.BidAccepted()
			e.log.Info("Bid accepted", "lot_id", lotID, "bidder_id", bidderID,
				"amount", amount.String(), "attempt", attempt)
			e.publish(ctx, &domain.LotEvent{
				Type:      domain.BidAccepted,
				LotID:     lotID,
				BidderID:  bidderID,
				Amount:    amount,
				Timestamp: now,
			})
			return &bid, nil
		case errors.Is(err, domain.ErrStaleState):
			e.log.Debug("Stale lot state, retrying", "lot_id", lotID, "attempt", attempt)
			continue
		default:
			return nil, e.reject(lotID, bidderID, amount.String(), err)
		}
	}

	return nil, e.reject(lotID, bidderID, amount.String(),
		fmt.Errorf("lot %s after %d retries: %w", lotID, e.maxRetries, domain.ErrContention))
}

func (e *BiddingEngine) closeLazily(ctx context.Context, lotID string, now time.Time) {
	closed, err := e.store.CloseIfExpired(ctx, lotID, now)
	if err != nil {
		e.log.Error("Failed to close expired lot", "lot_id", lotID, "error", err)
		return
	}
	if !closed {
		return
	}

	e.metrics.LotsClosedBy("lazy", 1)
	e.log.Info("Lot closed on bid attempt", "lot_id", lotID)
	publishClosed(ctx, e.store, e.eventPub, lotID, now, e.log)
}

func (e *BiddingEngine) reject(lotID, bidderID, amount string, err error) error {
	code := domain.Code(err)
	e.metrics.BidRejected(code)
	if code == "InternalServerError" {
		e.log.Error("Bid failed", "lot_id", lotID, "bidder_id", bidderID, "amount", amount, "error", err)
	} else {
		e.log.Info("Bid rejected", "lot_id", lotID, "bidder_id", bidderID,
			"amount", amount, "reason", domain.Reason(err))
	}
	return err
}

func (e *BiddingEngine) publish(ctx context.Context, event *domain.LotEvent) {
	if e.eventPub == nil {
		return
	}
	if err := e.eventPub.PublishLotEvent(ctx, event); err != nil {
		e.log.Warn("Failed to publish lot event", "type", event.Type, "lot_id", event.LotID, "error", err)
	}
}

// publishClosed emits lot_closed carrying the final price and winner, if any.
func publishClosed(ctx context.Context, store domain.LotStore, pub domain.EventPublisher,
	lotID string, now time.Time, log logger.Logger) {
	if pub == nil {
		return
	}

	event := &domain.LotEvent{Type: domain.LotClosedEv, LotID: lotID, Timestamp: now}
	if lot, err := store.Get(ctx, lotID); err == nil {
		event.BidderID = lot.HighestBidderID
		event.Amount = lot.CurrentHighestBid
	}

	if err := pub.PublishLotEvent(ctx, event); err != nil {
		log.Warn("Failed to publish lot event", "type", event.Type, "lot_id", lotID, "error", err)
	}
}
