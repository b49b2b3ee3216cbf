package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/crypto_dca_bot/internal/domain"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS fills (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pair TEXT NOT NULL,
			order_index INTEGER NOT NULL,
			price REAL NOT NULL,
			stake REAL NOT NULL,
			filled_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_fills_pair ON fills(pair);`,
		`CREATE TABLE IF NOT EXISTS position_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pair TEXT NOT NULL,
			side TEXT NOT NULL,
			average_price REAL NOT NULL,
			exit_price REAL NOT NULL,
			stake REAL NOT NULL,
			realized_pnl REAL NOT NULL,
			safety_orders INTEGER NOT NULL,
			exit_reason TEXT,
			closed_at DATETIME NOT NULL
		);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// FillRepository implementation

func (s *SQLiteStore) SaveFill(ctx context.Context, fill *domain.Fill) error {
	query := `INSERT INTO fills (pair, order_index, price, stake, filled_at)
			  VALUES (?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query,
		fill.Pair, fill.OrderIndex, fill.Price, fill.Stake, fill.FilledAt)
	if err != nil {
		return fmt.Errorf("failed to save fill: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		fill.ID = id
	}
	return nil
}

func (s *SQLiteStore) ListFills(ctx context.Context, pair string, limit int) ([]*domain.Fill, error) {
	query := `SELECT id, pair, order_index, price, stake, filled_at
			  FROM fills WHERE pair = ? ORDER BY filled_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, pair, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list fills: %w", err)
	}
	defer rows.Close()

	var fills []*domain.Fill
	for rows.Next() {
		var f domain.Fill
		if err := rows.Scan(&f.ID, &f.Pair, &f.OrderIndex, &f.Price, &f.Stake, &f.FilledAt); err != nil {
			return nil, err
		}
		fills = append(fills, &f)
	}
	return fills, rows.Err()
}

// PositionRepository implementation

func (s *SQLiteStore) SavePositionHistory(ctx context.Context, history *domain.PositionHistory) error {
	query := `INSERT INTO position_history (pair, side, average_price, exit_price, stake, realized_pnl, safety_orders, exit_reason, closed_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query,
		history.Pair, history.Side, history.AveragePrice, history.ExitPrice,
		history.Stake, history.RealizedPnL, history.SafetyOrders, history.ExitReason, history.ClosedAt)
	if err != nil {
		return fmt.Errorf("failed to save position history: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		history.ID = id
	}
	return nil
}

func (s *SQLiteStore) ListPositionHistory(ctx context.Context, limit int) ([]*domain.PositionHistory, error) {
	query := `SELECT id, pair, side, average_price, exit_price, stake, realized_pnl, safety_orders, exit_reason, closed_at
			  FROM position_history ORDER BY closed_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list position history: %w", err)
	}
	defer rows.Close()

	var records []*domain.PositionHistory
	for rows.Next() {
		var h domain.PositionHistory
		if err := rows.Scan(&h.ID, &h.Pair, &h.Side, &h.AveragePrice, &h.ExitPrice,
			&h.Stake, &h.RealizedPnL, &h.SafetyOrders, &h.ExitReason, &h.ClosedAt); err != nil {
			return nil, err
		}
		records = append(records, &h)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
