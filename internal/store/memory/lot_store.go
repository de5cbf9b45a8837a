// Package memory is the in-process LotStore. Every lot carries its own mutex so bids on
// different lots never contend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/utils"

	"github.com/shopspring/decimal"
)

type entry struct {
	mu  sync.Mutex
	lot *domain.Lot
}

type LotStore struct {
	mu   sync.RWMutex
	lots map[string]*entry
}

func NewLotStore() *LotStore {
	return &LotStore{lots: make(map[string]*entry)}
}

func (s *LotStore) Create(_ context.Context, lot *domain.Lot) (string, error) {
	stored := lot.Clone()
	if stored.ID == "" {
		stored.ID = utils.GenerateID("lot")
	}
	stored.Status = domain.LotOpen
	stored.CurrentHighestBid = stored.BasePrice
	stored.HighestBidderID = ""
	stored.Bids = []domain.Bid{}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.lots[stored.ID]; exists {
		return "", fmt.Errorf("lot %s: %w", stored.ID, domain.ErrDuplicateKey)
	}
	s.lots[stored.ID] = &entry{lot: stored}
	return stored.ID, nil
}

func (s *LotStore) entry(lotID string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.lots[lotID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("lot %s: %w", lotID, domain.ErrNotFound)
	}
	return e, nil
}

func (s *LotStore) Get(_ context.Context, lotID string) (*domain.Lot, error) {
	e, err := s.entry(lotID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lot.Clone(), nil
}

func (s *LotStore) snapshot(status domain.LotStatus) []*domain.Lot {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.lots))
	for _, e := range s.lots {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var out []*domain.Lot
	for _, e := range entries {
		e.mu.Lock()
		if e.lot.Status == status {
			out = append(out, e.lot.Clone())
		}
		e.mu.Unlock()
	}
	return out
}

func (s *LotStore) ListOpen(_ context.Context) ([]*domain.Lot, error) {
	lots := s.snapshot(domain.LotOpen)
	sort.Slice(lots, func(i, j int) bool {
		if !lots[i].EndTime.Equal(lots[j].EndTime) {
			return lots[i].EndTime.Before(lots[j].EndTime)
		}
		return lots[i].ID < lots[j].ID
	})
	return lots, nil
}

func (s *LotStore) ListClosed(_ context.Context) ([]*domain.Lot, error) {
	lots := s.snapshot(domain.LotClosed)
	sort.Slice(lots, func(i, j int) bool {
		if !lots[i].EndTime.Equal(lots[j].EndTime) {
			return lots[i].EndTime.After(lots[j].EndTime)
		}
		return lots[i].ID > lots[j].ID
	})
	return lots, nil
}

func (s *LotStore) CommitBid(_ context.Context, lotID string, expectedHighest decimal.Decimal, bid domain.Bid) error {
	e, err := s.entry(lotID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	lot := e.lot
	if lot.Status != domain.LotOpen || lot.Expired(bid.Timestamp) {
		return fmt.Errorf("lot %s: %w", lotID, domain.ErrClosed)
	}
	if !lot.CurrentHighestBid.Equal(expectedHighest) {
		return domain.ErrStaleState
	}

	lot.CurrentHighestBid = bid.Amount
	lot.HighestBidderID = bid.BidderID
	lot.Bids = append(lot.Bids, bid)
	return nil
}

func (s *LotStore) CloseExpired(_ context.Context, now time.Time) ([]string, error) {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.lots))
	for _, e := range s.lots {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var closed []string
	for _, e := range entries {
		e.mu.Lock()
		if e.lot.Status == domain.LotOpen && e.lot.Expired(now) {
			e.lot.Status = domain.LotClosed
			closed = append(closed, e.lot.ID)
		}
		e.mu.Unlock()
	}
	sort.Strings(closed)
	return closed, nil
}

func (s *LotStore) CloseIfExpired(_ context.Context, lotID string, now time.Time) (bool, error) {
	e, err := s.entry(lotID)
	if err != nil {
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lot.Status == domain.LotOpen && e.lot.Expired(now) {
		e.lot.Status = domain.LotClosed
		return true, nil
	}
	return false, nil
}
