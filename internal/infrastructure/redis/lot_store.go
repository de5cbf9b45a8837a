package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/utils"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

const (
	lotKeyPrefix  = "lot:"
	openLotsKey   = "lots:open"
	closedLotsKey = "lots:closed"

	statusClosed = "closed"
)

// Amounts are stored as decimal.String() so equal values always compare equal as strings.
var createScript = redis.NewScript(`
    if redis.call('EXISTS', KEYS[1]) == 1 then
        return 0
    end
    redis.call('HSET', KEYS[1],
        'id', ARGV[1],
        'item_name', ARGV[2],
        'description', ARGV[3],
        'seller_id', ARGV[4],
        'base_price', ARGV[5],
        'current_highest_bid', ARGV[5],
        'highest_bidder_id', '',
        'end_time', ARGV[6],
        'created_at', ARGV[7],
        'status', 'open')
    redis.call('ZADD', KEYS[2], ARGV[6], ARGV[1])
    return 1
`)

var commitBidScript = redis.NewScript(`
    local lot = redis.call('HMGET', KEYS[1], 'status', 'current_highest_bid', 'end_time')
    if lot[1] == false then
        return 'not_found'
    end
    if lot[1] ~= 'open' or tonumber(ARGV[4]) >= tonumber(lot[3]) then
        return 'closed'
    end
    if lot[2] ~= ARGV[1] then
        return 'stale'
    end
    redis.call('HSET', KEYS[1], 'current_highest_bid', ARGV[2], 'highest_bidder_id', ARGV[3])
    redis.call('RPUSH', KEYS[2], ARGV[5])
    return 'ok'
`)

// closeExpiredScript takes the lot hashes as KEYS[3..] with their ids in ARGV[2..].
// Candidates are re-checked against the open index so a lot closed since they were
// read is skipped.
var closeExpiredScript = redis.NewScript(`
    local closed = {}
    for i = 3, #KEYS do
        local id = ARGV[i - 1]
        local score = redis.call('ZSCORE', KEYS[1], id)
        if score and tonumber(score) <= tonumber(ARGV[1]) then
            redis.call('HSET', KEYS[i], 'status', 'closed')
            redis.call('ZREM', KEYS[1], id)
            redis.call('ZADD', KEYS[2], score, id)
            table.insert(closed, id)
        end
    end
    return closed
`)

var closeIfExpiredScript = redis.NewScript(`
    local lot = redis.call('HMGET', KEYS[1], 'status', 'end_time')
    if lot[1] == false then
        return -1
    end
    if lot[1] ~= 'open' or tonumber(ARGV[1]) < tonumber(lot[2]) then
        return 0
    end
    redis.call('HSET', KEYS[1], 'status', 'closed')
    redis.call('ZREM', KEYS[2], ARGV[2])
    redis.call('ZADD', KEYS[3], lot[2], ARGV[2])
    return 1
`)

// LotStore keeps each lot in a hash, its bid log in a list and the open/closed
// indexes in sorted sets scored by end time. Every mutation is a single Lua script.
type LotStore struct {
	client *redis.Client
}

func NewLotStore(client *redis.Client) *LotStore {
	return &LotStore{client: client}
}

func lotKey(lotID string) string {
	return lotKeyPrefix + lotID
}

func bidsKey(lotID string) string {
	return lotKeyPrefix + lotID + ":bids"
}

func (s *LotStore) Create(ctx context.Context, lot *domain.Lot) (string, error) {
	id := lot.ID
	if id == "" {
		id = utils.GenerateID("lot")
	}

	created, err := createScript.Run(ctx, s.client, []string{lotKey(id), openLotsKey},
		id,
		lot.ItemName,
		lot.Description,
		lot.SellerID,
		lot.BasePrice.String(),
		lot.EndTime.UnixMicro(),
		lot.CreatedAt.UnixMicro(),
	).Int()
	if err != nil {
		return "", fmt.Errorf("create lot %s: %w", id, err)
	}
	if created == 0 {
		return "", fmt.Errorf("lot %s: %w", id, domain.ErrDuplicateKey)
	}
	return id, nil
}

func (s *LotStore) Get(ctx context.Context, lotID string) (*domain.Lot, error) {
	// MULTI/EXEC so the hash and the bid log come from the same point in time.
	var fieldsCmd *redis.StringStringMapCmd
	var bidsCmd *redis.StringSliceCmd
	if _, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fieldsCmd = pipe.HGetAll(ctx, lotKey(lotID))
		bidsCmd = pipe.LRange(ctx, bidsKey(lotID), 0, -1)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("get lot %s: %w", lotID, err)
	}

	fields := fieldsCmd.Val()
	if len(fields) == 0 {
		return nil, fmt.Errorf("lot %s: %w", lotID, domain.ErrNotFound)
	}

	lot, err := decodeLot(fields)
	if err != nil {
		return nil, fmt.Errorf("decode lot %s: %w", lotID, err)
	}

	lot.Bids = make([]domain.Bid, 0, len(bidsCmd.Val()))
	for _, raw := range bidsCmd.Val() {
		var bid domain.Bid
		if err := json.Unmarshal([]byte(raw), &bid); err != nil {
			return nil, fmt.Errorf("decode bid for lot %s: %w", lotID, err)
		}
		lot.Bids = append(lot.Bids, bid)
	}
	return lot, nil
}

func (s *LotStore) list(ctx context.Context, ids []string) ([]*domain.Lot, error) {
	lots := make([]*domain.Lot, 0, len(ids))
	for _, id := range ids {
		lot, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, nil
}

// ListOpen relies on ZRANGE ordering: score ascending, then member ascending.
func (s *LotStore) ListOpen(ctx context.Context) ([]*domain.Lot, error) {
	ids, err := s.client.ZRange(ctx, openLotsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list open lots: %w", err)
	}
	return s.list(ctx, ids)
}

func (s *LotStore) ListClosed(ctx context.Context) ([]*domain.Lot, error) {
	ids, err := s.client.ZRevRange(ctx, closedLotsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list closed lots: %w", err)
	}
	return s.list(ctx, ids)
}

func (s *LotStore) CommitBid(ctx context.Context, lotID string, expectedHighest decimal.Decimal, bid domain.Bid) error {
	payload, err := json.Marshal(bid)
	if err != nil {
		return fmt.Errorf("encode bid: %w", err)
	}

	result, err := commitBidScript.Run(ctx, s.client, []string{lotKey(lotID), bidsKey(lotID)},
		expectedHighest.String(),
		bid.Amount.String(),
		bid.BidderID,
		bid.Timestamp.UnixMicro(),
		string(payload),
	).Text()
	if err != nil {
		return fmt.Errorf("commit bid on lot %s: %w", lotID, err)
	}

	switch result {
	case "ok":
		return nil
	case "stale":
		return domain.ErrStaleState
	case "closed":
		return fmt.Errorf("lot %s: %w", lotID, domain.ErrClosed)
	case "not_found":
		return fmt.Errorf("lot %s: %w", lotID, domain.ErrNotFound)
	default:
		return fmt.Errorf("commit bid on lot %s: unexpected result %q", lotID, result)
	}
}

func (s *LotStore) CloseExpired(ctx context.Context, now time.Time) ([]string, error) {
	cutoff := now.UnixMicro()
	candidates, err := s.client.ZRangeByScore(ctx, openLotsKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list expired lots: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(candidates)+2)
	args := make([]interface{}, 0, len(candidates)+1)
	keys = append(keys, openLotsKey, closedLotsKey)
	args = append(args, cutoff)
	for _, id := range candidates {
		keys = append(keys, lotKey(id))
		args = append(args, id)
	}

	ids, err := closeExpiredScript.Run(ctx, s.client, keys, args...).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("close expired lots: %w", err)
	}
	return ids, nil
}

func (s *LotStore) CloseIfExpired(ctx context.Context, lotID string, now time.Time) (bool, error) {
	result, err := closeIfExpiredScript.Run(ctx, s.client, []string{lotKey(lotID), openLotsKey, closedLotsKey},
		now.UnixMicro(), lotID).Int()
	if err != nil {
		return false, fmt.Errorf("close lot %s: %w", lotID, err)
	}

	switch result {
	case -1:
		return false, fmt.Errorf("lot %s: %w", lotID, domain.ErrNotFound)
	case 1:
		return true, nil
	default:
		return false, nil
	}
}

func decodeLot(fields map[string]string) (*domain.Lot, error) {
	basePrice, err := decimal.NewFromString(fields["base_price"])
	if err != nil {
		return nil, fmt.Errorf("base_price: %w", err)
	}
	highest, err := decimal.NewFromString(fields["current_highest_bid"])
	if err != nil {
		return nil, fmt.Errorf("current_highest_bid: %w", err)
	}
	endTime, err := strconv.ParseInt(fields["end_time"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("end_time: %w", err)
	}
	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}

	status := domain.LotOpen
	if fields["status"] == statusClosed {
		status = domain.LotClosed
	}

	return &domain.Lot{
		ID:                fields["id"],
		ItemName:          fields["item_name"],
		Description:       fields["description"],
		SellerID:          fields["seller_id"],
		BasePrice:         basePrice,
		CurrentHighestBid: highest,
		HighestBidderID:   fields["highest_bidder_id"],
		EndTime:           time.UnixMicro(endTime).UTC(),
		Status:            status,
		CreatedAt:         time.UnixMicro(createdAt).UTC(),
	}, nil
}
