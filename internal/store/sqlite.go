package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/zhouzirui/sahayak/backend/internal/model/chat"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS user_records (
	user_id TEXT PRIMARY KEY,
	document TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// SQLiteStore keeps one JSON document per user in a SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and creates) the database file at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("path is required for sqlite store")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// a single connection keeps :memory: databases coherent
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Get loads the record for userID.
func (s *SQLiteStore) Get(ctx context.Context, userID string) (*chat.Record, error) {
	var document string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM user_records WHERE user_id = ?`, userID).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get %s: %w", userID, err)
	}
	return decodeRecord(userID, []byte(document))
}

// Put upserts the record.
func (s *SQLiteStore) Put(ctx context.Context, record *chat.Record) error {
	data, err := encodeRecord(record)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_records (user_id, document, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			document = excluded.document,
			updated_at = excluded.updated_at
	`, record.UserID, string(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite put %s: %w", record.UserID, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
