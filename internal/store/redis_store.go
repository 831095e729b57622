package store

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	fieldData    = "data"
	fieldVersion = "ver"
)

// RedisStore implements Store directly on Redis. Each key is a hash holding
// the value and its version; compare-and-swap uses WATCH/MULTI.
type RedisStore struct {
	rdb       *redis.Client
	namespace string
}

// NewRedisStore creates a Redis-backed store. All keys are written under
// namespace so the database can be shared with other users.
func NewRedisStore(rdb *redis.Client, namespace string) *RedisStore {
	return &RedisStore{rdb: rdb, namespace: namespace}
}

func (s *RedisStore) Get(ctx context.Context, key string) (Item, error) {
	vals, err := s.rdb.HMGet(ctx, s.key(key), fieldData, fieldVersion).Result()
	if err != nil {
		return Item{}, err
	}
	if vals[0] == nil {
		return Item{}, ErrNotFound
	}
	return itemFromHash(vals[0], vals[1]), nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	k := s.key(key)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, fieldData, value)
		pipe.HIncrBy(ctx, k, fieldVersion, 1)
		return nil
	})
	return err
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.key(key)).Err()
}

func (s *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, s.key(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.namespace))
	}
	return keys, iter.Err()
}

var errVersionMismatch = errors.New("store: version mismatch")

func (s *RedisStore) CompareAndSwap(ctx context.Context, key string, version int64, value []byte) (bool, error) {
	k := s.key(key)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, k, fieldVersion).Int64()
		if err == redis.Nil {
			cur = 0
		} else if err != nil {
			return err
		}
		if cur != version {
			return errVersionMismatch
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, k, fieldData, value, fieldVersion, version+1)
			return nil
		})
		return err
	}, k)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errVersionMismatch), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, err
	}
}

func (s *RedisStore) key(k string) string { return s.namespace + k }

// itemFromHash converts HMGET results. go-redis returns hash fields as
// strings.
func itemFromHash(data, ver interface{}) Item {
	var it Item
	if str, ok := data.(string); ok {
		it.Value = []byte(str)
	}
	if str, ok := ver.(string); ok {
		it.Version, _ = strconv.ParseInt(str, 10, 64)
	}
	return it
}
