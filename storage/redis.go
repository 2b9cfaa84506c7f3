package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/routerlabs/device-cert-backend/interfaces"
)

// RedisStore implements interfaces.KeyValueStore on a Redis instance. The
// composite operations use MULTI/EXEC pipelines so concurrent writers never
// observe partial application.
type RedisStore struct {
	client *redis.Client
	log    *slog.Logger
}

// NewRedisStore wraps an already-configured go-redis client.
func NewRedisStore(client *redis.Client, log *slog.Logger) *RedisStore {
	return &RedisStore{client: client, log: log}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, interfaces.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (s *RedisStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) ReplaceAndPush(ctx context.Context, key string, value []byte, ttl time.Duration, list string, payload []byte) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.Set(ctx, key, value, ttl)
	pipe.LPush(ctx, list, payload)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	pipe.SetNX(ctx, key, 0, 0)
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Expire(ctx, key, ttl).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
