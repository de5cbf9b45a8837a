package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"auction-engine/internal/config"

	"github.com/go-sql-driver/mysql"
)

const errDuplicateEntry = 1062

// Open connects with the pool limits from cfg and pings the server.
func Open(ctx context.Context, cfg config.MySQLConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS lots (
        id VARCHAR(64) NOT NULL PRIMARY KEY,
        item_name VARCHAR(255) NOT NULL,
        description TEXT NOT NULL,
        seller_id VARCHAR(64) NOT NULL,
        base_price DECIMAL(24,6) NOT NULL,
        current_highest_bid DECIMAL(24,6) NOT NULL,
        highest_bidder_id VARCHAR(64) NOT NULL DEFAULT '',
        end_time DATETIME(6) NOT NULL,
        status TINYINT NOT NULL,
        created_at DATETIME(6) NOT NULL,
        INDEX idx_lots_status_end (status, end_time)
    )`,
	`CREATE TABLE IF NOT EXISTS bids (
        id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
        lot_id VARCHAR(64) NOT NULL,
        bidder_id VARCHAR(64) NOT NULL,
        amount DECIMAL(24,6) NOT NULL,
        created_at DATETIME(6) NOT NULL,
        INDEX idx_bids_lot (lot_id, id)
    )`,
	`CREATE TABLE IF NOT EXISTS users (
        id VARCHAR(64) NOT NULL PRIMARY KEY,
        username VARCHAR(64) NOT NULL UNIQUE,
        email VARCHAR(255) NOT NULL UNIQUE,
        password_hash VARCHAR(255) NOT NULL,
        role VARCHAR(16) NOT NULL,
        created_at DATETIME(6) NOT NULL
    )`,
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == errDuplicateEntry
}
