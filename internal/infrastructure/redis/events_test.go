package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	rq := require.New(t)
	client := newClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu  sync.Mutex
		got []*domain.LotEvent
	)
	sub := NewRedisEventSubscriber(client, "events", logger.NewNop())
	done := make(chan error, 1)
	go func() {
		done <- sub.SubscribeToLotEvents(ctx, func(event *domain.LotEvent) error {
			mu.Lock()
			got = append(got, event)
			mu.Unlock()
			return nil
		})
	}()

	pub := NewEventPublisher(client, "events")
	event := &domain.LotEvent{
		Type:      domain.BidAccepted,
		LotID:     "lot_1",
		BidderID:  "alice",
		Amount:    decimal.RequireFromString("12.50"),
		Timestamp: t0,
	}

	rq.Eventually(func() bool {
		_ = pub.PublishLotEvent(ctx, event)
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, 2*time.Second, 20*time.Millisecond)

	mu.Lock()
	first := got[0]
	mu.Unlock()
	rq.Equal(domain.BidAccepted, first.Type)
	rq.Equal("lot_1", first.LotID)
	rq.Equal("alice", first.BidderID)
	rq.True(first.Amount.Equal(decimal.RequireFromString("12.5")))
	rq.True(first.Timestamp.Equal(t0))

	cancel()
	select {
	case err := <-done:
		rq.ErrorIs(err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}

func TestParseEventData(t *testing.T) {
	rq := require.New(t)

	_, err := parseEventData("not json")
	rq.Error(err)

	_, err = parseEventData(`{"type":"bid_accepted"}`)
	rq.Error(err)

	event, err := parseEventData(`{"type":"lot_closed","lot_id":"x","amount":"15","timestamp":"2024-03-01T10:00:00Z"}`)
	rq.NoError(err)
	rq.Equal(domain.LotClosedEv, event.Type)
	rq.True(event.Amount.Equal(decimal.NewFromInt(15)))
}
