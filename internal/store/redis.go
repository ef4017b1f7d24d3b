package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sketchsync/sketchsync/internal/models"
)

// RedisStore holds issued bearer tokens in Redis, letting every token
// expire on its own TTL.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis-backed token store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for middleware that shares the
// connection (rate limiting).
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func tokenKey(token string) string {
	return fmt.Sprintf("token:%s", token)
}

// SaveToken stores a token's identity with the given TTL.
func (s *RedisStore) SaveToken(ctx context.Context, token string, identity models.Identity, ttl time.Duration) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, tokenKey(token), data, ttl).Err()
}

// GetToken resolves a token to its identity. Unknown or expired tokens
// yield (nil, nil).
func (s *RedisStore) GetToken(ctx context.Context, token string) (*models.Identity, error) {
	data, err := s.client.Get(ctx, tokenKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var id models.Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// DeleteToken revokes a token.
func (s *RedisStore) DeleteToken(ctx context.Context, token string) error {
	return s.client.Del(ctx, tokenKey(token)).Err()
}
