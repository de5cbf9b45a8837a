package nats

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// fakeConn delivers to wildcard subscribers of a single-token tail, enough for <prefix>.*.
type fakeConn struct {
	mu      sync.Mutex
	subs    map[string]chan *nats.Msg
	subject []string
	err     error
}

func newFakeConn() *fakeConn {
	return &fakeConn{subs: make(map[string]chan *nats.Msg)}
}

func (c *fakeConn) Publish(subj string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.subject = append(c.subject, subj)
	for pattern, ch := range c.subs {
		prefix := strings.TrimSuffix(pattern, "*")
		if strings.HasPrefix(subj, prefix) && !strings.Contains(subj[len(prefix):], ".") {
			ch <- &nats.Msg{Subject: subj, Data: data}
		}
	}
	return nil
}

func (c *fakeConn) ChanSubscribe(subj string, ch chan *nats.Msg) (*nats.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[subj] = ch
	return &nats.Subscription{Subject: subj}, nil
}

func (c *fakeConn) subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs) > 0
}

func TestPublishUsesPerLotSubject(t *testing.T) {
	rq := require.New(t)
	conn := newFakeConn()
	pub := NewEventPublisher(conn, "")

	rq.NoError(pub.PublishLotEvent(context.Background(), &domain.LotEvent{Type: domain.LotCreated, LotID: "lot_1"}))
	rq.Equal([]string{"lot_events.lot_1"}, conn.subject)

	conn.err = errors.New("connection closed")
	rq.Error(pub.PublishLotEvent(context.Background(), &domain.LotEvent{Type: domain.LotCreated, LotID: "lot_1"}))
}

func TestSubscriberRoundTrip(t *testing.T) {
	rq := require.New(t)
	conn := newFakeConn()
	pub := NewEventPublisher(conn, "bids")
	sub := NewEventSubscriber(conn, "bids", logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan *domain.LotEvent, 1)
	done := make(chan error, 1)
	go func() {
		done <- sub.SubscribeToLotEvents(ctx, func(e *domain.LotEvent) error {
			received <- e
			return nil
		})
	}()
	rq.Eventually(conn.subscribed, time.Second, 5*time.Millisecond)

	rq.NoError(conn.Publish("bids.garbage", []byte("{")))
	rq.NoError(pub.PublishLotEvent(ctx, &domain.LotEvent{
		Type: domain.BidAccepted, LotID: "lot_9", BidderID: "ann", Amount: decimal.RequireFromString("42.10"),
	}))

	select {
	case e := <-received:
		rq.Equal("lot_9", e.LotID)
		rq.Equal("ann", e.BidderID)
		rq.True(e.Amount.Equal(decimal.RequireFromString("42.1")))
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	rq.ErrorIs(<-done, context.Canceled)
}
