// Package postgres persists the terminal sales journal in PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warungtech/pos-register/db"
	"github.com/warungtech/pos-register/internal/register"
)

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing database config")
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "creating connection pool")
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		return errors.Wrap(err, "running migrations")
	}
	return nil
}

const (
	appendSaleSQL = `INSERT INTO sales_journal
	(id, order_code, customer_id, lines, subtotal, discount_total, total,
	 redeemed_points, points_earned, status, sold_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	recentSalesSQL = `SELECT id, order_code, customer_id, lines, subtotal,
	 discount_total, total, redeemed_points, points_earned, status, sold_at
	FROM sales_journal ORDER BY sold_at DESC LIMIT $1`
)

var _ register.SaleRecorder = (*Journal)(nil)

// Journal implements register.SaleRecorder backed by PostgreSQL.
type Journal struct {
	pool *pgxpool.Pool
}

// NewJournal returns a Journal that uses the given pool.
func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool}
}

// RecordSale appends a terminal sale. Sale lines are serialized to JSON for
// storage in the JSONB column.
func (j *Journal) RecordSale(ctx context.Context, s register.Sale) error {
	linesJSON, err := json.Marshal(s.Lines)
	if err != nil {
		return errors.Wrap(err, "marshaling sale lines")
	}

	_, err = j.pool.Exec(ctx, appendSaleSQL,
		s.ID, s.OrderCode, s.CustomerID, linesJSON,
		s.Subtotal, s.DiscountTotal, s.Total,
		s.RedeemedPoints, s.PointsEarned, s.Status, s.SoldAt,
	)
	if err != nil {
		return errors.Wrapf(err, "recording sale %q", s.OrderCode)
	}

	return nil
}

// Recent returns the most recent journal entries, newest first. It backs the
// cash-up view on the terminal.
func (j *Journal) Recent(ctx context.Context, limit int) ([]register.Sale, error) {
	rows, err := j.pool.Query(ctx, recentSalesSQL, limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying journal")
	}
	defer rows.Close()

	var sales []register.Sale
	for rows.Next() {
		var (
			s         register.Sale
			linesJSON []byte
		)
		if err := rows.Scan(
			&s.ID, &s.OrderCode, &s.CustomerID, &linesJSON,
			&s.Subtotal, &s.DiscountTotal, &s.Total,
			&s.RedeemedPoints, &s.PointsEarned, &s.Status, &s.SoldAt,
		); err != nil {
			return nil, errors.Wrap(err, "scanning journal row")
		}
		if err := json.Unmarshal(linesJSON, &s.Lines); err != nil {
			return nil, errors.Wrap(err, "unmarshaling sale lines")
		}
		sales = append(sales, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating journal rows")
	}

	return sales, nil
}
