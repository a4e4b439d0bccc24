package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/zhouzirui/sahayak/backend/internal/model/chat"
)

// RedisConfig configures the redis-backed store.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore keeps each record as a JSON string under KeyPrefix+userID.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// OpenRedis creates the client and verifies the connection.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStore(client, cfg.KeyPrefix), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// Get loads the record for userID.
func (s *RedisStore) Get(ctx context.Context, userID string) (*chat.Record, error) {
	data, err := s.client.Get(ctx, s.prefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", userID, err)
	}
	return decodeRecord(userID, data)
}

// Put replaces the record without expiry.
func (s *RedisStore) Put(ctx context.Context, record *chat.Record) error {
	data, err := encodeRecord(record)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.prefix+record.UserID, data, 0).Err(); err != nil {
		return fmt.Errorf("redis put %s: %w", record.UserID, err)
	}
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
