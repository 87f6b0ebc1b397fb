package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"wsd/internal/structures"
)

const redisKeyPrefix = "wsd:identity:"

// RedisStore keeps each identity's preferences in one hash.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(cfg structures.RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func hashKey(identity string) string {
	return redisKeyPrefix + normalize(identity)
}

func (s *RedisStore) Get(ctx context.Context, identity, key string) (string, bool, error) {
	v, err := s.client.HGet(ctx, hashKey(identity), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, identity, key, value string) error {
	return s.client.HSet(ctx, hashKey(identity), key, value).Err()
}

func (s *RedisStore) Delete(ctx context.Context, identity, key string) error {
	return s.client.HDel(ctx, hashKey(identity), key).Err()
}
