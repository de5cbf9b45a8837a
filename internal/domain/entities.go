package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Lot struct {
	ID                string          `json:"id"`
	ItemName          string          `json:"item_name"`
	Description       string          `json:"description"`
	SellerID          string          `json:"seller_id"`
	BasePrice         decimal.Decimal `json:"base_price"`
	CurrentHighestBid decimal.Decimal `json:"current_highest_bid"`
	HighestBidderID   string          `json:"highest_bidder_id,omitempty"`
	Bids              []Bid           `json:"bids"`
	EndTime           time.Time       `json:"end_time"`
	Status            LotStatus       `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Clone returns a deep copy; stores hand out clones so callers never share the bid log.
func (l *Lot) Clone() *Lot {
	if l == nil {
		return nil
	}
	c := *l
	c.Bids = make([]Bid, len(l.Bids))
	copy(c.Bids, l.Bids)
	return &c
}

// Expired reports whether the deadline has been reached at now.
func (l *Lot) Expired(now time.Time) bool {
	return !now.Before(l.EndTime)
}

// HasBids reports whether any bid has been accepted.
func (l *Lot) HasBids() bool {
	return len(l.Bids) > 0
}

type LotStatus int

const (
	LotOpen LotStatus = iota
	LotClosed
)

func (s LotStatus) String() string {
	switch s {
	case LotOpen:
		return "open"
	case LotClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func (s LotStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *LotStatus) UnmarshalText(text []byte) error {
	status, err := ParseLotStatus(string(text))
	if err != nil {
		return err
	}
	*s = status
	return nil
}

func ParseLotStatus(s string) (LotStatus, error) {
	switch s {
	case "open":
		return LotOpen, nil
	case "closed":
		return LotClosed, nil
	default:
		return LotOpen, ErrInvalidArgument
	}
}

type Bid struct {
	BidderID  string          `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

type LotEvent struct {
	Type      LotEventType    `json:"type"`
	LotID     string          `json:"lot_id"`
	BidderID  string          `json:"bidder_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

type LotEventType string

const (
	LotCreated  LotEventType = "lot_created"
	BidAccepted LotEventType = "bid_accepted"
	LotClosedEv LotEventType = "lot_closed"
)

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

func (r Role) Valid() bool {
	return r == RoleBuyer || r == RoleSeller
}

// UserHandle is what the identity collaborator hands to the engine.
type UserHandle struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
}

type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

func (u *User) Handle() UserHandle {
	return UserHandle{ID: u.ID, DisplayName: u.Username, Role: u.Role}
}
