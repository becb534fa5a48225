// Package statestore provides the Redis-backed cycle state store used when
// entry/exit accounting must survive process restarts. The in-memory store
// in the geofence package remains the default for single-process runs.
package statestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/osoriofleet/fleetkm/server/internal/config"
)

const keyPrefix = "fleetkm:lastzone:"

// RedisStore implements geofence.StateStore on a Redis backend. Keys expire
// after the configured TTL so vehicles that drop out of the fleet do not
// accumulate state forever.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, cfg config.StateConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

// LastZone returns the vehicle's persisted zone, or "" when none is stored
func (s *RedisStore) LastZone(ctx context.Context, vehicleKey string) (string, error) {
	zone, err := s.client.Get(ctx, keyPrefix+vehicleKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read cycle state for %s: %w", vehicleKey, err)
	}
	return zone, nil
}

// SetLastZone persists the vehicle's zone; an empty zone clears the state
func (s *RedisStore) SetLastZone(ctx context.Context, vehicleKey string, zoneID string) error {
	key := keyPrefix + vehicleKey
	if zoneID == "" {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to clear cycle state for %s: %w", vehicleKey, err)
		}
		return nil
	}

	if err := s.client.Set(ctx, key, zoneID, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to persist cycle state for %s: %w", vehicleKey, err)
	}
	return nil
}

// Close releases the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
