package abort

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "catalog:abort:"

// RedisStore shares abort flags between instances through Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisClient connects to Redis. It returns nil without an error when addr
// is empty or the server does not answer, so the caller can fall back to a
// MemoryStore.
func NewRedisClient(ctx context.Context, addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn("failed to connect to Redis (%s, DB %d): %v, using memory store", addr, db, err)
		_ = rdb.Close()
		return nil
	}

	log.Info("connected to Redis (%s, DB %d)", addr, db)
	return rdb
}

func redisKey(token string) string {
	return redisKeyPrefix + token
}

// Set flags token with an expiry of ttl.
func (s *RedisStore) Set(ctx context.Context, token string, ttl time.Duration) error {
	return s.client.Set(ctx, redisKey(token), "1", ttl).Err()
}

// IsSet reports whether token is flagged.
func (s *RedisStore) IsSet(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Exists(ctx, redisKey(token)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	return n > 0, nil
}

// Delete clears the flag for token.
func (s *RedisStore) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, redisKey(token)).Err()
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
