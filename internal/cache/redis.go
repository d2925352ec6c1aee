package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"docsync/internal/logging"
)

// RedisStore backs the shared caches with redis so multiple engine instances
// share existence and similarity results. Redis failures degrade to cache
// misses; the engine never depends on the cache for correctness.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger logging.Logger
}

// RedisOptions configures the redis cache backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	// Prefix namespaces keys so several engines can share one redis.
	Prefix string
}

// NewRedisStore connects to redis and verifies it with a ping.
func NewRedisStore(ctx context.Context, opts RedisOptions, logger logging.Logger) (*RedisStore, error) {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.Prefix == "" {
		opts.Prefix = "docsync"
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisStore{
		client: client,
		ttl:    opts.TTL,
		prefix: opts.Prefix + ":",
		logger: logger.WithComponent("cache.redis"),
	}, nil
}

// Get fetches a key; any redis error is treated as a miss.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool) {
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.WarnContext(ctx, "redis get failed, treating as miss", "key", key, "error", err)
		}
		return "", false
	}
	return val, true
}

// Set stores a key with the configured TTL; failures are logged and dropped.
func (s *RedisStore) Set(ctx context.Context, key, value string) {
	if err := s.client.Set(ctx, s.prefix+key, value, s.ttl).Err(); err != nil {
		s.logger.WarnContext(ctx, "redis set failed", "key", key, "error", err)
	}
}

// Close releases the redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
