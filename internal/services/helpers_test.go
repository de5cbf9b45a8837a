package services

import (
	"context"
	"sync"
	"time"

	"auction-engine/internal/domain"

	"github.com/shopspring/decimal"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.LotEvent
	err    error
}

func (p *recordingPublisher) PublishLotEvent(_ context.Context, event *domain.LotEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *event)
	return p.err
}

func (p *recordingPublisher) ofType(t domain.LotEventType) []domain.LotEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.LotEvent
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// staleStore reports every commit as stale.
type staleStore struct {
	domain.LotStore
	commits int
}

func (s *staleStore) CommitBid(context.Context, string, decimal.Decimal, domain.Bid) error {
	s.commits++
	return domain.ErrStaleState
}

type fakeLeader struct {
	leader bool
	err    error
}

func (f *fakeLeader) BecomeLeader(context.Context, string) (bool, error) { return f.leader, f.err }
func (f *fakeLeader) IsLeader(context.Context, string) (bool, error)     { return f.leader, f.err }
func (f *fakeLeader) ReleaseLeadership(context.Context, string) error    { return nil }

type broadcast struct {
	lotID   string
	message interface{}
}

type fakeConnections struct {
	mu         sync.Mutex
	broadcasts []broadcast
	notified   []string
	closed     []string
}

func (f *fakeConnections) RegisterConnection(string, string, domain.WebSocketConnection) error {
	return nil
}
func (f *fakeConnections) UnregisterConnection(string, string, domain.WebSocketConnection) error {
	return nil
}
func (f *fakeConnections) GetConnectionsForLot(string) []domain.WebSocketConnection {
	return nil
}
func (f *fakeConnections) NotifyUser(userID string, _ interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, userID)
	return nil
}

func (f *fakeConnections) BroadcastToLot(lotID string, message interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, broadcast{lotID: lotID, message: message})
	return nil
}

func (f *fakeConnections) CloseAndUnregisterConnections(lotID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, lotID)
	return nil
}
