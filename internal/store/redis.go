package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"resourceruntime/internal/config"
	"resourceruntime/internal/network"
)

// RedisStore persists snapshots as a Redis hash under a single key.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a RedisStore from the given configuration. The
// connection is verified with a PING before the store is returned.
func NewRedisStore(cfg config.RedisConfig, socksCfg config.SOCKSConfig) (*RedisStore, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	socksDialer, err := network.NewSOCKS5Dialer(socksCfg.Host, socksCfg.Port)
	if err != nil {
		return nil, err
	}
	if socksDialer != nil {
		opts.Dialer = socksDialer.DialContext
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	key := cfg.Key
	if key == "" {
		key = "runtime:snapshot"
	}
	return &RedisStore{client: client, key: key}, nil
}

// Save persists the snapshot, replacing any previous one atomically via a
// transaction pipeline (DEL + HSET).
func (s *RedisStore) Save(ctx context.Context, snapshot map[string]string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key)
	if len(snapshot) > 0 {
		fields := make(map[string]interface{}, len(snapshot))
		for k, v := range snapshot {
			fields[k] = v
		}
		pipe.HSet(ctx, s.key, fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save snapshot to Redis: %w", err)
	}
	return nil
}

// Load returns the last saved snapshot, or (nil, nil) if none exists.
func (s *RedisStore) Load(ctx context.Context) (map[string]string, error) {
	values, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot from Redis: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
