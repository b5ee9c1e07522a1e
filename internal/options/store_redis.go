package options

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const optionKeyPrefix = "opt:"

// RedisStore shares runtime options across instances. This is the
// production-recommended implementation for multi-node deployments; the key
// existence model matches the in-memory store (absent key means "use default").
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, optionKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	// No TTL: options persist until changed.
	return s.client.Set(ctx, optionKeyPrefix+key, value, 0).Err()
}
