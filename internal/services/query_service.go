package services

import (
	"context"
	"fmt"
	"sort"

	"auction-engine/internal/domain"
)

// QueryService serves stale-tolerant reads. It never takes part in bid commits.
type QueryService struct {
	store domain.LotStore
	clock domain.Clock
}

func NewQueryService(store domain.LotStore, clock domain.Clock) *QueryService {
	return &QueryService{store: store, clock: clock}
}

// CurrentLeading returns the open lot ending soonest, or nil when none is live.
// Lots past their end time are skipped even if no sweep has closed them yet.
func (q *QueryService) CurrentLeading(ctx context.Context) (*domain.Lot, error) {
	lots, err := q.OpenLots(ctx)
	if err != nil {
		return nil, err
	}
	if len(lots) == 0 {
		return nil, nil
	}
	return lots[0], nil
}

// OpenLots lists live lots by end time ascending, ties by id.
func (q *QueryService) OpenLots(ctx context.Context) ([]*domain.Lot, error) {
	lots, err := q.store.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open lots: %w", err)
	}

	now := q.clock.Now()
	live := make([]*domain.Lot, 0, len(lots))
	for _, lot := range lots {
		if lot.Status == domain.LotOpen && !lot.Expired(now) {
			live = append(live, lot)
		}
	}

	sort.SliceStable(live, func(i, j int) bool {
		if !live[i].EndTime.Equal(live[j].EndTime) {
			return live[i].EndTime.Before(live[j].EndTime)
		}
		return live[i].ID < live[j].ID
	})
	return live, nil
}

// TopBidders returns up to n bids by amount descending, earlier bids first on ties.
func (q *QueryService) TopBidders(ctx context.Context, lotID string, n int) ([]domain.Bid, error) {
	if n <= 0 {
		return nil, fmt.Errorf("n must be positive: %w", domain.ErrInvalidArgument)
	}

	lot, err := q.store.Get(ctx, lotID)
	if err != nil {
		return nil, err
	}

	bids := lot.Bids
	sort.SliceStable(bids, func(i, j int) bool {
		if !bids[i].Amount.Equal(bids[j].Amount) {
			return bids[i].Amount.GreaterThan(bids[j].Amount)
		}
		return bids[i].Timestamp.Before(bids[j].Timestamp)
	})

	if len(bids) > n {
		bids = bids[:n]
	}
	return bids, nil
}

// History lists closed lots, most recently ended first.
func (q *QueryService) History(ctx context.Context) ([]*domain.Lot, error) {
	lots, err := q.store.ListClosed(ctx)
	if err != nil {
		return nil, fmt.Errorf("list closed lots: %w", err)
	}
	return lots, nil
}

func (q *QueryService) Lot(ctx context.Context, lotID string) (*domain.Lot, error) {
	return q.store.Get(ctx, lotID)
}
