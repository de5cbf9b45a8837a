package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"auction-engine/internal/clock"
	"auction-engine/internal/domain"
	"auction-engine/internal/metrics"
	"auction-engine/internal/store/memory"
	"auction-engine/pkg/logger"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	engine *BiddingEngine
	store  *memory.LotStore
	clock  *clock.Manual
	pub    *recordingPublisher
	m      *metrics.Metrics
}

func newEngine(maxRetries int) *engineFixture {
	f := &engineFixture{
		store: memory.NewLotStore(),
		clock: clock.NewManual(t0),
		pub:   &recordingPublisher{},
		m:     metrics.New(),
	}
	f.engine = NewBiddingEngine(f.store, f.clock, f.pub, f.m, maxRetries, logger.NewNop())
	return f
}

func (f *engineFixture) lot(t *testing.T, base string, d time.Duration) *domain.Lot {
	t.Helper()
	lot, err := f.engine.CreateAuction(context.Background(), CreateAuctionInput{
		ItemName:  "painting",
		BasePrice: dec(base),
		SellerID:  "seller",
		Duration:  d,
	})
	require.NoError(t, err)
	return lot
}

func TestCreateAuction(t *testing.T) {
	rq := require.New(t)
	f := newEngine(DefaultMaxBidRetries)

	lot := f.lot(t, "10.00", 5*time.Second)
	rq.NotEmpty(lot.ID)
	rq.Equal(t0.Add(5*time.Second), lot.EndTime)
	rq.Equal(domain.LotOpen, lot.Status)

	stored, err := f.store.Get(context.Background(), lot.ID)
	rq.NoError(err)
	rq.True(stored.CurrentHighestBid.Equal(dec("10")))
	rq.Empty(stored.HighestBidderID)

	rq.Len(f.pub.ofType(domain.LotCreated), 1)
	rq.Equal(1.0, testutil.ToFloat64(f.m.LotsCreated))
}

func TestCreateAuctionValidation(t *testing.T) {
	f := newEngine(DefaultMaxBidRetries)
	valid := CreateAuctionInput{ItemName: "x", BasePrice: dec("0"), SellerID: "s", Duration: time.Second}

	tests := []struct {
		name   string
		mutate func(in *CreateAuctionInput)
	}{
		{"negative base price", func(in *CreateAuctionInput) { in.BasePrice = dec("-0.01") }},
		{"zero duration", func(in *CreateAuctionInput) { in.Duration = 0 }},
		{"negative duration", func(in *CreateAuctionInput) { in.Duration = -time.Second }},
		{"blank item", func(in *CreateAuctionInput) { in.ItemName = "  " }},
		{"no seller", func(in *CreateAuctionInput) { in.SellerID = "" }},
		{"duration past limit", func(in *CreateAuctionInput) { in.Duration = domain.MaxLotDuration + time.Second }},
		{"base price past six places", func(in *CreateAuctionInput) { in.BasePrice = dec("0.0000001") }},
		{"base price past eighteen digits", func(in *CreateAuctionInput) { in.BasePrice = dec("1e18") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := f.engine.CreateAuction(context.Background(), in)
			require.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}

	_, err := f.engine.CreateAuction(context.Background(), valid)
	require.NoError(t, err)
}

func TestBidScenario(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	f := newEngine(DefaultMaxBidRetries)
	lot := f.lot(t, "10.00", 5*time.Second)

	_, err := f.engine.PlaceBid(ctx, lot.ID, "alice", dec("12.00"))
	rq.NoError(err)

	f.clock.Advance(time.Second)
	_, err = f.engine.PlaceBid(ctx, lot.ID, "bob", dec("11.00"))
	rq.ErrorIs(err, domain.ErrBidTooLow)
	rq.Equal("bid too low", domain.Reason(err))

	f.clock.Advance(time.Second)
	bid, err := f.engine.PlaceBid(ctx, lot.ID, "carol", dec("15.00"))
	rq.NoError(err)
	rq.Equal(t0.Add(2*time.Second), bid.Timestamp)

	f.clock.Set(t0.Add(6 * time.Second))
	_, err = f.engine.PlaceBid(ctx, lot.ID, "dave", dec("20.00"))
	rq.ErrorIs(err, domain.ErrClosed)
	rq.Equal("auction closed", domain.Reason(err))

	stored, err := f.store.Get(ctx, lot.ID)
	rq.NoError(err)
	rq.Len(stored.Bids, 2)
	rq.True(stored.CurrentHighestBid.Equal(dec("15")))
	rq.Equal("carol", stored.HighestBidderID)
	rq.Equal(domain.LotClosed, stored.Status)

	closed := f.pub.ofType(domain.LotClosedEv)
	rq.Len(closed, 1)
	rq.Equal("carol", closed[0].BidderID)
	rq.True(closed[0].Amount.Equal(dec("15")))
	rq.Len(f.pub.ofType(domain.BidAccepted), 2)
}

func TestBidAtExactDeadlineRejected(t *testing.T) {
	rq := require.New(t)
	f := newEngine(DefaultMaxBidRetries)
	lot := f.lot(t, "1", 5*time.Second)

	f.clock.Set(lot.EndTime)
	_, err := f.engine.PlaceBid(context.Background(), lot.ID, "alice", dec("2"))
	rq.ErrorIs(err, domain.ErrClosed)
}

func TestFirstBidEqualToBasePriceRejected(t *testing.T) {
	rq := require.New(t)
	f := newEngine(DefaultMaxBidRetries)
	lot := f.lot(t, "10", time.Minute)

	_, err := f.engine.PlaceBid(context.Background(), lot.ID, "alice", dec("10.00"))
	rq.ErrorIs(err, domain.ErrBidTooLow)

	_, err = f.engine.PlaceBid(context.Background(), lot.ID, "alice", dec("10.01"))
	rq.NoError(err)

	_, err = f.engine.PlaceBid(context.Background(), lot.ID, "bob", dec("10.01"))
	rq.ErrorIs(err, domain.ErrBidTooLow)
}

func TestPlaceBidUnknownLot(t *testing.T) {
	rq := require.New(t)
	f := newEngine(DefaultMaxBidRetries)

	_, err := f.engine.PlaceBid(context.Background(), "nope", "alice", dec("1"))
	rq.ErrorIs(err, domain.ErrNotFound)
	rq.Equal("no such auction", domain.Reason(err))

	_, err = f.engine.PlaceBid(context.Background(), "nope", "", dec("1"))
	rq.ErrorIs(err, domain.ErrInvalidArgument)
}

func TestPlaceBidRejectsUnstorableAmounts(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	f := newEngine(DefaultMaxBidRetries)
	lot := f.lot(t, "12", time.Minute)

	// would round to 12.000000 in a DECIMAL(24,6) column and tie the base price
	_, err := f.engine.PlaceBid(ctx, lot.ID, "alice", dec("12.0000001"))
	rq.ErrorIs(err, domain.ErrInvalidArgument)

	_, err = f.engine.PlaceBid(ctx, lot.ID, "alice", dec("1e-200000000"))
	rq.ErrorIs(err, domain.ErrInvalidArgument)
	rq.Less(len(err.Error()), 100)

	_, err = f.engine.PlaceBid(ctx, lot.ID, "alice", dec("1e200000000"))
	rq.ErrorIs(err, domain.ErrInvalidArgument)

	_, err = f.engine.PlaceBid(ctx, lot.ID, "alice", dec("1000000000000000000"))
	rq.ErrorIs(err, domain.ErrInvalidArgument)
	rq.Equal(4.0, testutil.ToFloat64(f.m.BidsTotal.WithLabelValues("rejected", "InvalidArgument")))

	bid, err := f.engine.PlaceBid(ctx, lot.ID, "alice", dec("12.0000010000"))
	rq.NoError(err)
	rq.True(bid.Amount.Equal(dec("12.000001")))

	stored, err := f.store.Get(ctx, lot.ID)
	rq.NoError(err)
	rq.Len(stored.Bids, 1)
}

func TestPlaceBidOnSweptLot(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	f := newEngine(DefaultMaxBidRetries)
	lot := f.lot(t, "1", time.Second)

	f.clock.Advance(time.Second)
	closed, err := f.store.CloseExpired(ctx, f.clock.Now())
	rq.NoError(err)
	rq.Equal([]string{lot.ID}, closed)

	_, err = f.engine.PlaceBid(ctx, lot.ID, "alice", dec("100"))
	rq.ErrorIs(err, domain.ErrClosed)
	rq.Empty(f.pub.ofType(domain.LotClosedEv))
}

func TestPlaceBidContention(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	f := newEngine(3)
	lot := f.lot(t, "1", time.Minute)

	stale := &staleStore{LotStore: f.store}
	engine := NewBiddingEngine(stale, f.clock, nil, f.m, 3, logger.NewNop())

	_, err := engine.PlaceBid(ctx, lot.ID, "alice", dec("2"))
	rq.ErrorIs(err, domain.ErrContention)
	rq.Equal("contention, try again", domain.Reason(err))
	rq.False(errors.Is(err, domain.ErrStaleState))
	rq.Equal(4, stale.commits)
	rq.Equal(3.0, testutil.ToFloat64(f.m.BidRetries))
	rq.Equal(1.0, testutil.ToFloat64(f.m.BidsTotal.WithLabelValues("rejected", "Contention")))
}

func TestPublishFailureDoesNotFailBid(t *testing.T) {
	rq := require.New(t)
	f := newEngine(DefaultMaxBidRetries)
	f.pub.err = errors.New("broker down")
	lot := f.lot(t, "1", time.Minute)

	_, err := f.engine.PlaceBid(context.Background(), lot.ID, "alice", dec("2"))
	rq.NoError(err)
}

func TestConcurrentBidsStayMonotonic(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()

	const n = 50
	f := newEngine(n)
	lot := f.lot(t, "40", time.Minute)

	var wg sync.WaitGroup
	errs := make([]error, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.engine.PlaceBid(ctx, lot.ID, fmt.Sprintf("bidder-%d", i), decimal.NewFromInt(int64(41+i)))
		}(i)
	}
	close(start)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			rq.True(errors.Is(err, domain.ErrBidTooLow) || errors.Is(err, domain.ErrContention), err)
		}
	}

	stored, err := f.store.Get(ctx, lot.ID)
	rq.NoError(err)
	rq.NotEmpty(stored.Bids)

	prev := stored.BasePrice
	for _, bid := range stored.Bids {
		rq.True(bid.Amount.GreaterThan(prev), "bid %s not above %s", bid.Amount, prev)
		prev = bid.Amount
	}

	last := stored.Bids[len(stored.Bids)-1]
	rq.True(stored.CurrentHighestBid.Equal(last.Amount))
	rq.Equal(last.BidderID, stored.HighestBidderID)
	// the highest submission always gets in: it is only ever stale because someone else committed
	rq.True(stored.CurrentHighestBid.Equal(decimal.NewFromInt(40 + n)))
}

func TestTwoSimultaneousBidders(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	f := newEngine(DefaultMaxBidRetries)
	lot := f.lot(t, "40", time.Minute)

	var wg sync.WaitGroup
	for _, amount := range []string{"50.00", "51.00"} {
		wg.Add(1)
		go func(amount string) {
			defer wg.Done()
			_, _ = f.engine.PlaceBid(ctx, lot.ID, "b-"+amount, dec(amount))
		}(amount)
	}
	wg.Wait()

	stored, err := f.store.Get(ctx, lot.ID)
	rq.NoError(err)
	rq.True(stored.CurrentHighestBid.Equal(dec("51")))
	rq.Equal("b-51.00", stored.HighestBidderID)
}
