package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

// RedisClaimStore implements BatchClaimer on redis so stage claims hold
// across worker instances.
type RedisClaimStore struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds the redis connection parameters.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisClaimStore connects to redis and verifies the connection with a
// bounded ping before handing the store out.
func NewRedisClaimStore(cfg RedisConfig) (*RedisClaimStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClaimStore{
		client:    client,
		keyPrefix: "pipeline:claim:",
	}, nil
}

// Acquire attempts to take the claim for a stage run with a TTL.
// Returns true if the claim was newly acquired, false if another worker
// already holds it. SETNX keeps the check-and-set atomic; the TTL bounds
// the damage of a worker dying mid-batch.
func (s *RedisClaimStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	result, err := s.client.SetNX(ctx, s.keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire claim: %w", err)
	}

	return result, nil
}

// Release drops a held claim so the next run does not wait for expiry.
// Releasing a claim that already lapsed is a no-op.
func (s *RedisClaimStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release claim: %w", err)
	}
	return nil
}

// Close closes the redis client.
func (s *RedisClaimStore) Close() error {
	return s.client.Close()
}

var _ shared.BatchClaimer = (*RedisClaimStore)(nil)
