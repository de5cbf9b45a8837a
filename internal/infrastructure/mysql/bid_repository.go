package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"auction-engine/internal/domain"
)

// execer and querier are satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func insertBid(ctx context.Context, db execer, lotID string, bid domain.Bid) error {
	query := `
        INSERT INTO bids (lot_id, bidder_id, amount, created_at)
        VALUES (?, ?, ?, ?)
    `
	_, err := db.ExecContext(ctx, query, lotID, bid.BidderID, bid.Amount, bid.Timestamp.UTC())
	return err
}

// listBids returns the bid log in acceptance order.
func listBids(ctx context.Context, db querier, lotID string) ([]domain.Bid, error) {
	query := `
        SELECT bidder_id, amount, created_at
        FROM bids
        WHERE lot_id = ?
        ORDER BY id ASC
    `

	rows, err := db.QueryContext(ctx, query, lotID)
	if err != nil {
		return nil, fmt.Errorf("query bids for lot %s: %w", lotID, err)
	}
	defer rows.Close()

	bids := []domain.Bid{}
	for rows.Next() {
		var bid domain.Bid
		if err := rows.Scan(&bid.BidderID, &bid.Amount, &bid.Timestamp); err != nil {
			return nil, fmt.Errorf("scan bid: %w", err)
		}
		bid.Timestamp = bid.Timestamp.UTC()
		bids = append(bids, bid)
	}

	return bids, rows.Err()
}
