package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/utils"

	"github.com/shopspring/decimal"
)

const lotColumns = `id, item_name, description, seller_id, base_price, current_highest_bid,
        highest_bidder_id, end_time, status, created_at`

// LotStore persists lots and bids. CommitBid is a conditional UPDATE on
// current_highest_bid inside a transaction that also appends the bid row.
type LotStore struct {
	db *sql.DB
}

func NewLotStore(db *sql.DB) *LotStore {
	return &LotStore{db: db}
}

func (r *LotStore) Create(ctx context.Context, lot *domain.Lot) (string, error) {
	id := lot.ID
	if id == "" {
		id = utils.GenerateID("lot")
	}

	query := `
        INSERT INTO lots (` + lotColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err := r.db.ExecContext(ctx, query,
		id, lot.ItemName, lot.Description, lot.SellerID,
		lot.BasePrice, lot.BasePrice, "",
		lot.EndTime.UTC(), int(domain.LotOpen), lot.CreatedAt.UTC())
	if err != nil {
		if isDuplicate(err) {
			return "", fmt.Errorf("lot %s: %w", id, domain.ErrDuplicateKey)
		}
		return "", fmt.Errorf("insert lot %s: %w", id, err)
	}
	return id, nil
}

func (r *LotStore) Get(ctx context.Context, lotID string) (*domain.Lot, error) {
	query := `SELECT ` + lotColumns + ` FROM lots WHERE id = ?`

	lot, err := scanLot(r.db.QueryRowContext(ctx, query, lotID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lot %s: %w", lotID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get lot %s: %w", lotID, err)
	}

	lot.Bids, err = listBids(ctx, r.db, lotID)
	if err != nil {
		return nil, err
	}
	return lot, nil
}

func (r *LotStore) ListOpen(ctx context.Context) ([]*domain.Lot, error) {
	return r.listByStatus(ctx, domain.LotOpen, "end_time ASC, id ASC")
}

func (r *LotStore) ListClosed(ctx context.Context) ([]*domain.Lot, error) {
	return r.listByStatus(ctx, domain.LotClosed, "end_time DESC, id DESC")
}

func (r *LotStore) listByStatus(ctx context.Context, status domain.LotStatus, order string) ([]*domain.Lot, error) {
	query := `SELECT ` + lotColumns + ` FROM lots WHERE status = ? ORDER BY ` + order

	rows, err := r.db.QueryContext(ctx, query, int(status))
	if err != nil {
		return nil, fmt.Errorf("list %s lots: %w", status, err)
	}

	var lots []*domain.Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan lot: %w", err)
		}
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, lot := range lots {
		if lot.Bids, err = listBids(ctx, r.db, lot.ID); err != nil {
			return nil, err
		}
	}
	return lots, nil
}

func (r *LotStore) CommitBid(ctx context.Context, lotID string, expectedHighest decimal.Decimal, bid domain.Bid) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
        UPDATE lots SET current_highest_bid = ?, highest_bidder_id = ?
        WHERE id = ? AND status = ? AND current_highest_bid = CAST(? AS DECIMAL(24,6)) AND end_time > ?
    `
	res, err := tx.ExecContext(ctx, query,
		bid.Amount, bid.BidderID, lotID, int(domain.LotOpen), expectedHighest, bid.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("update lot %s: %w", lotID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update lot %s: %w", lotID, err)
	}
	if affected == 0 {
		return r.classifyMiss(ctx, tx, lotID, bid.Timestamp)
	}

	if err := insertBid(ctx, tx, lotID, bid); err != nil {
		return fmt.Errorf("insert bid on lot %s: %w", lotID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bid on lot %s: %w", lotID, err)
	}
	return nil
}

// classifyMiss explains why the conditional UPDATE matched no row.
func (r *LotStore) classifyMiss(ctx context.Context, tx *sql.Tx, lotID string, at time.Time) error {
	var (
		status  int
		endTime time.Time
	)
	err := tx.QueryRowContext(ctx, `SELECT status, end_time FROM lots WHERE id = ?`, lotID).
		Scan(&status, &endTime)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("lot %s: %w", lotID, domain.ErrNotFound)
	case err != nil:
		return fmt.Errorf("get lot %s: %w", lotID, err)
	case domain.LotStatus(status) != domain.LotOpen || !at.Before(endTime):
		return fmt.Errorf("lot %s: %w", lotID, domain.ErrClosed)
	default:
		return domain.ErrStaleState
	}
}

func (r *LotStore) CloseExpired(ctx context.Context, now time.Time) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM lots WHERE status = ? AND end_time <= ? ORDER BY id FOR UPDATE`,
		int(domain.LotOpen), now.UTC())
	if err != nil {
		return nil, fmt.Errorf("select expired lots: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan lot id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE lots SET status = ? WHERE status = ? AND end_time <= ?`,
		int(domain.LotClosed), int(domain.LotOpen), now.UTC()); err != nil {
		return nil, fmt.Errorf("close expired lots: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit close: %w", err)
	}
	return ids, nil
}

func (r *LotStore) CloseIfExpired(ctx context.Context, lotID string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE lots SET status = ? WHERE id = ? AND status = ? AND end_time <= ?`,
		int(domain.LotClosed), lotID, int(domain.LotOpen), now.UTC())
	if err != nil {
		return false, fmt.Errorf("close lot %s: %w", lotID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close lot %s: %w", lotID, err)
	}
	if affected > 0 {
		return true, nil
	}

	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM lots WHERE id = ?`, lotID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("lot %s: %w", lotID, domain.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("get lot %s: %w", lotID, err)
	}
	return false, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLot(row rowScanner) (*domain.Lot, error) {
	var (
		lot    domain.Lot
		status int
	)
	err := row.Scan(&lot.ID, &lot.ItemName, &lot.Description, &lot.SellerID,
		&lot.BasePrice, &lot.CurrentHighestBid, &lot.HighestBidderID,
		&lot.EndTime, &status, &lot.CreatedAt)
	if err != nil {
		return nil, err
	}

	lot.Status = domain.LotStatus(status)
	lot.EndTime = lot.EndTime.UTC()
	lot.CreatedAt = lot.CreatedAt.UTC()
	return &lot, nil
}
