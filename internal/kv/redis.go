package kv

import (
	"context"
	"time"

	"github.com/pkg/errors"
	redis "gopkg.in/redis.v5"
)

const keyPrefix = "converse:session:"

// RedisStore implements Store on a shared Redis instance. Redis is the
// production backend: TTL handling is native and sessions survive
// gateway restarts and are shared across replicas.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis at the given URL and validates
// connectivity before returning.
func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "invalid redis url")
	}

	client := redis.NewClient(opts)
	if err := client.Ping().Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "redis ping failed")
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(_ context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(keyPrefix + key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get")
	}
	return val, nil
}

func (s *RedisStore) SetEx(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(keyPrefix+key, value, ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

func (s *RedisStore) Exists(_ context.Context, key string) (bool, error) {
	ok, err := s.client.Exists(keyPrefix + key).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis exists")
	}
	return ok, nil
}

func (s *RedisStore) Del(_ context.Context, key string) (bool, error) {
	n, err := s.client.Del(keyPrefix + key).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis del")
	}
	return n > 0, nil
}

func (s *RedisStore) Ping(_ context.Context) error {
	return s.client.Ping().Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
