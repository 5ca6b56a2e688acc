package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "feedsweep"

// Redis keeps every key as a field of one hash, "<prefix>:state".
type Redis struct {
	client *redis.Client
	hash   string
}

// NewRedis creates a Redis store. An empty prefix defaults to "feedsweep".
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &Redis{client: client, hash: prefix + ":state"}
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.HGet(ctx, r.hash, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: redis hget %s: %w", key, err)
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.client.HSet(ctx, r.hash, key, value).Err(); err != nil {
		return fmt.Errorf("store: redis hset %s: %w", key, err)
	}
	return nil
}

func (r *Redis) All(ctx context.Context) (map[string]string, error) {
	m, err := r.client.HGetAll(ctx, r.hash).Result()
	if err != nil {
		return nil, fmt.Errorf("store: redis hgetall: %w", err)
	}
	return m, nil
}

func (r *Redis) Close() error { return r.client.Close() }
