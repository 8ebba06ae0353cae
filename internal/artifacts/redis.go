package artifacts

import (
	"context"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisStore keeps objects as redis strings under Prefix + object name.
type RedisStore struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore uses prefix "logc:artifacts:" when prefix is empty. A zero ttl keeps keys forever.
func NewRedisStore(rdb goredis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "logc:artifacts:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) redisKey(jobID string, key Key) string {
	return s.prefix + ObjectName(jobID, key)
}

func (s *RedisStore) Put(ctx context.Context, jobID string, key Key, value []byte) error {
	return s.rdb.Set(ctx, s.redisKey(jobID, key), value, s.ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, jobID string, key Key) ([]byte, error) {
	raw, err := s.rdb.Get(ctx, s.redisKey(jobID, key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, notFound(jobID, key, err)
		}
		return nil, err
	}
	return raw, nil
}

func (s *RedisStore) Exists(ctx context.Context, jobID string, key Key) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.redisKey(jobID, key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
