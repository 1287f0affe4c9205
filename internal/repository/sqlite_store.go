package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"parts-order-bot/internal/domain"
)

// SQLiteStore keeps orders in a local SQLite file. It serves the local
// developer binary and follows the same contract as Client.
type SQLiteStore struct {
	conn *sql.DB
	path string
}

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		version INTEGER NOT NULL,
		data TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_updated_at ON orders(updated_at)`,
	`CREATE TABLE IF NOT EXISTS turns (
		order_id TEXT NOT NULL,
		message_id TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (order_id, message_id)
	)`,
}

// OpenSQLite opens (and creates) the database at path and applies the
// schema. WAL mode is enabled for concurrent reads.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("repository: create db directory: %w", err)
		}
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("repository: open sqlite: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under parallel turns.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("repository: enable WAL mode: %w", err)
	}
	for i, m := range sqliteMigrations {
		if _, err := conn.Exec(m); err != nil {
			conn.Close()
			return nil, fmt.Errorf("repository: migration %d: %w", i+1, err)
		}
	}
	return &SQLiteStore{conn: conn, path: path}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// Path returns the path to the database file.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	var data string
	err := s.conn.QueryRowContext(ctx, `SELECT data FROM orders WHERE id = ?`, orderID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("repository: GetOrder: %w", err)
	}
	return decodeOrder(data)
}

func (s *SQLiteStore) GetTurn(ctx context.Context, orderID, messageID string) (domain.TurnRecord, error) {
	var data string
	err := s.conn.QueryRowContext(ctx,
		`SELECT data FROM turns WHERE order_id = ? AND message_id = ?`, orderID, messageID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TurnRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.TurnRecord{}, fmt.Errorf("repository: GetTurn: %w", err)
	}
	return decodeTurn(data)
}

func (s *SQLiteStore) SaveOrder(ctx context.Context, order domain.Order, turn *domain.TurnRecord) error {
	data, err := encodeOrder(order)
	if err != nil {
		return fmt.Errorf("repository: SaveOrder: %w", err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: SaveOrder begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var res sql.Result
	updatedAt := sortableTime(order.UpdatedAt)
	if order.Version <= 1 {
		res, err = tx.ExecContext(ctx,
			`INSERT INTO orders (id, chat_id, status, version, data, updated_at) VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO NOTHING`,
			order.ID, order.ChatID, string(order.Status), order.Version, data, updatedAt)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE orders SET chat_id = ?, status = ?, version = ?, data = ?, updated_at = ? WHERE id = ? AND version = ?`,
			order.ChatID, string(order.Status), order.Version, data, updatedAt, order.ID, order.Version-1)
	}
	if err != nil {
		return fmt.Errorf("repository: SaveOrder write order: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("repository: SaveOrder: %w", err)
	} else if n == 0 {
		return fmt.Errorf("repository: SaveOrder: %w", domain.ErrOrderConflict)
	}

	if turn != nil {
		turnData, err := encodeTurn(*turn)
		if err != nil {
			return fmt.Errorf("repository: SaveOrder: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO turns (order_id, message_id, data, created_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(order_id, message_id) DO NOTHING`,
			turn.OrderID, turn.MessageID, turnData, sortableTime(turn.CreatedAt))
		if err != nil {
			return fmt.Errorf("repository: SaveOrder write turn: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("repository: SaveOrder: %w", err)
		} else if n == 0 {
			return fmt.Errorf("repository: SaveOrder: %w", domain.ErrDuplicateTurn)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("repository: SaveOrder commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.conn.QueryContext(ctx, `SELECT data FROM orders ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: ListOrders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("repository: ListOrders scan: %w", err)
		}
		o, err := decodeOrder(data)
		if err != nil {
			return nil, fmt.Errorf("repository: ListOrders: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: ListOrders: %w", err)
	}
	return orders, nil
}
