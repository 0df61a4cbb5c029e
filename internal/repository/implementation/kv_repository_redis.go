package implementation

import (
	"context"
	"errors"
	"time"

	"servicelines-be/internal/repository/contract"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "servicelines:session:"

// RedisKVRepository stores each session as one hash; the TTL is refreshed on
// every write.
type RedisKVRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisKVRepository(rdb *redis.Client, ttl time.Duration) contract.KVRepository {
	return &RedisKVRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisKVRepository) hashKey(sessionID string) string {
	return redisKeyPrefix + sessionID
}

func (r *RedisKVRepository) Get(ctx context.Context, sessionID, key string) ([]byte, bool, error) {
	v, err := r.rdb.HGet(ctx, r.hashKey(sessionID), key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return v, true, nil
}

func (r *RedisKVRepository) Set(ctx context.Context, sessionID, key string, value []byte) error {
	hk := r.hashKey(sessionID)
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, hk, key, value)
	if r.ttl > 0 {
		pipe.Expire(ctx, hk, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisKVRepository) Delete(ctx context.Context, sessionID, key string) error {
	return r.rdb.HDel(ctx, r.hashKey(sessionID), key).Err()
}

func (r *RedisKVRepository) Clear(ctx context.Context, sessionID string) error {
	return r.rdb.Del(ctx, r.hashKey(sessionID)).Err()
}
