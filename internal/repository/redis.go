package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKeyPrefix = "widget:"

// RedisStorage implements Storage on plain Redis string keys.
type RedisStorage struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStorage creates a Redis-backed storage. A zero ttl never expires keys.
func NewRedisStorage(client *redis.Client, prefix string, ttl time.Duration) *RedisStorage {
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}
	return &RedisStorage{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Get implements Storage.
func (s *RedisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set implements Storage.
func (s *RedisStorage) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, s.key(key), value, s.ttl).Err()
}

// Delete implements Storage.
func (s *RedisStorage) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

// Close implements Storage.
func (s *RedisStorage) Close() error {
	return s.client.Close()
}

func (s *RedisStorage) key(k string) string {
	return s.prefix + k
}
