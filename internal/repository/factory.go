package repository

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// StoreType represents the type of storage driver.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeSQLite StoreType = "sqlite"
	StoreTypeRedis  StoreType = "redis"
)

// Option is a functional option for configuring a storage driver.
type Option func(*options)

type options struct {
	sqliteDSN      string
	redisClient    *redis.Client
	redisTTL       time.Duration
	redisKeyPrefix string
}

// WithSQLiteDSN sets the data source name for the sqlite driver.
func WithSQLiteDSN(dsn string) Option {
	return func(o *options) {
		o.sqliteDSN = dsn
	}
}

// WithRedisClient sets the Redis client for the redis driver.
func WithRedisClient(client *redis.Client) Option {
	return func(o *options) {
		o.redisClient = client
	}
}

// WithRedisTTL sets an expiry on every written key. Zero keeps keys forever.
func WithRedisTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.redisTTL = ttl
	}
}

// WithRedisKeyPrefix overrides the prefix prepended to every Redis key.
func WithRedisKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.redisKeyPrefix = prefix
	}
}

// NewStorage creates a Storage for the given driver type.
// sqlite requires WithSQLiteDSN and redis requires WithRedisClient.
func NewStorage(storeType StoreType, opts ...Option) (Storage, error) {
	cfg := &options{}
	for _, opt := range opts {
		opt(cfg)
	}

	switch storeType {
	case StoreTypeMemory:
		return NewMemoryStorage(), nil

	case StoreTypeSQLite:
		if cfg.sqliteDSN == "" {
			return nil, ErrInvalidConfig
		}
		s, err := NewSQLiteStorage(cfg.sqliteDSN)
		if err != nil {
			return nil, err
		}
		return s, nil

	case StoreTypeRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return NewRedisStorage(cfg.redisClient, cfg.redisKeyPrefix, cfg.redisTTL), nil

	default:
		return nil, ErrInvalidStoreType
	}
}
