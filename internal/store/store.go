// Package store persists user records. Every backend stores the whole record
// as one document keyed by user id; Put always replaces the previous value.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/sahayak/backend/internal/config"
	"github.com/zhouzirui/sahayak/backend/internal/logging"
	"github.com/zhouzirui/sahayak/backend/internal/model/chat"
)

var (
	// ErrNotFound signals that no record exists for the user.
	ErrNotFound       = errors.New("record not found")
	ErrUserIDRequired = errors.New("record user id is required")
)

// SessionStore reads and writes user records.
type SessionStore interface {
	Get(ctx context.Context, userID string) (*chat.Record, error)
	Put(ctx context.Context, record *chat.Record) error
	Close() error
}

// Open builds the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.SugaredLogger) (SessionStore, error) {
	logger = logging.OrNop(logger)

	switch cfg.Backend {
	case "", config.StoreMemory:
		logger.Infow("[store] using in-memory records")
		return NewMemoryStore(), nil
	case config.StoreBadger:
		logger.Infow("[store] opening badger", "path", cfg.Path)
		return OpenBadger(BadgerConfig{Path: cfg.Path, SyncWrites: true, Logger: logger})
	case config.StoreSQLite:
		logger.Infow("[store] opening sqlite", "path", cfg.Path)
		return OpenSQLite(ctx, cfg.Path)
	case config.StoreMongo:
		logger.Infow("[store] connecting to mongo", "database", cfg.MongoDatabase, "collection", cfg.MongoCollection)
		return OpenMongo(ctx, MongoConfig{
			URI:        cfg.MongoURI,
			Database:   cfg.MongoDatabase,
			Collection: cfg.MongoCollection,
		})
	case config.StoreRedis:
		logger.Infow("[store] connecting to redis", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
		return OpenRedis(ctx, RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func encodeRecord(record *chat.Record) ([]byte, error) {
	if record == nil || record.UserID == "" {
		return nil, ErrUserIDRequired
	}
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode record %s: %w", record.UserID, err)
	}
	return data, nil
}

func decodeRecord(userID string, data []byte) (*chat.Record, error) {
	record := &chat.Record{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", userID, err)
	}
	if record.ChatHistory == nil {
		record.ChatHistory = []chat.Message{}
	}
	return record, nil
}
