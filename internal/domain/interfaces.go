package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Clock interface {
	Now() time.Time
}

// LotStore is the durable state for lots and their bid logs.
// CommitBid and the Close* methods are the only operations that mutate a stored lot,
// and each is atomic per lot.
type LotStore interface {
	Create(ctx context.Context, lot *Lot) (string, error)
	Get(ctx context.Context, lotID string) (*Lot, error)
	ListOpen(ctx context.Context) ([]*Lot, error)
	ListClosed(ctx context.Context) ([]*Lot, error)
	CommitBid(ctx context.Context, lotID string, expectedHighest decimal.Decimal, bid Bid) error
	CloseExpired(ctx context.Context, now time.Time) ([]string, error)
	CloseIfExpired(ctx context.Context, lotID string, now time.Time) (bool, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByID(ctx context.Context, userID string) (*User, error)
}

// Event interfaces
type EventPublisher interface {
	PublishLotEvent(ctx context.Context, event *LotEvent) error
}

type EventSubscriber interface {
	SubscribeToLotEvents(ctx context.Context, handler EventHandler) error
}

type EventHandler func(event *LotEvent) error

// Leader election interface
type LeaderElection interface {
	BecomeLeader(ctx context.Context, instanceID string) (bool, error)
	IsLeader(ctx context.Context, instanceID string) (bool, error)
	ReleaseLeadership(ctx context.Context, instanceID string) error
}

// WebSocket interfaces
type WebSocketConnection interface {
	Send(message interface{}) error
	Close() error
	UserID() string
	LotID() string
}

type ConnectionManager interface {
	RegisterConnection(userID, lotID string, conn WebSocketConnection) error
	UnregisterConnection(userID, lotID string, conn WebSocketConnection) error
	GetConnectionsForLot(lotID string) []WebSocketConnection
	BroadcastToLot(lotID string, message interface{}) error
	NotifyUser(userID string, message interface{}) error
	CloseAndUnregisterConnections(lotID string) error
}
