package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrBelowScript keeps the read-compare-increment-expire sequence atomic so
// racing callers for the same key are linearized by Redis.
var incrBelowScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local limit = tonumber(ARGV[1])
if current >= limit then
  return {0, current}
end
local n = redis.call("INCR", KEYS[1])
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return {1, n}
`)

// RedisStore is a CounterStore backed by Redis.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an existing client; the caller owns its lifecycle.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Get implements CounterStore.
func (s *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	if s.client == nil {
		return 0, errors.New("redis client is nil")
	}
	n, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// IncrBelow implements CounterStore.
func (s *RedisStore) IncrBelow(ctx context.Context, key string, limit int64, ttl time.Duration) (int64, bool, error) {
	if s.client == nil {
		return 0, false, errors.New("redis client is nil")
	}
	ttlMS := ttl.Milliseconds()
	if ttlMS < 1 {
		ttlMS = 1
	}
	raw, err := incrBelowScript.Run(ctx, s.client, []string{key}, limit, ttlMS).Result()
	if err != nil {
		return 0, false, err
	}
	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return 0, false, fmt.Errorf("unexpected redis script response %T", raw)
	}
	allowed, err := toInt64(values[0])
	if err != nil {
		return 0, false, err
	}
	count, err := toInt64(values[1])
	if err != nil {
		return 0, false, err
	}
	return count, allowed == 1, nil
}

// Ping checks connectivity; used at startup.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected redis integer type %T", v)
	}
}
