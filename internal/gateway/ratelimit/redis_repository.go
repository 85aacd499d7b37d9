package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRepository is a Repository backed by Redis, sharing rate-limit
// counters across platform instances. Grounded on the pack's
// GoRedisAdapter connect-and-ping-on-construct pattern.
type RedisRepository struct {
	client *redis.Client
}

// NewRedisRepository pings addr with a short timeout before returning, so
// callers can fall back to an in-memory Repository on connection failure
// rather than fail requests later.
func NewRedisRepository(addr, password string, db int) (*RedisRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ratelimit: connecting to redis: %w", err)
	}

	return &RedisRepository{client: client}, nil
}

// luaFixedWindow atomically reads, conditionally resets, increments, and
// returns the counter and window_start for a key. Using a script avoids a
// read-then-write race between concurrent requests for the same key.
const luaFixedWindow = `
local count_key = KEYS[1]
local start_key = KEYS[2]
local window_ms = tonumber(ARGV[1])
local now_ms = tonumber(ARGV[2])

local start = tonumber(redis.call("GET", start_key))
if not start or (now_ms - start) >= window_ms then
	start = now_ms
	redis.call("SET", start_key, start, "PX", window_ms * 2)
	redis.call("SET", count_key, 1, "PX", window_ms * 2)
	return {1, start}
end

local count = redis.call("INCR", count_key)
redis.call("PEXPIRE", count_key, window_ms * 2)
return {count, start}
`

func (r *RedisRepository) Increment(ctx context.Context, key, scope string, windowMs int64) (int64, time.Time, error) {
	countKey := fmt.Sprintf("ratelimit:{%s:%s}:count", scope, key)
	startKey := fmt.Sprintf("ratelimit:{%s:%s}:start", scope, key)
	nowMs := time.Now().UnixMilli()

	res, err := r.client.Eval(ctx, luaFixedWindow, []string{countKey, startKey}, windowMs, nowMs).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("ratelimit: redis eval: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return 0, time.Time{}, fmt.Errorf("ratelimit: unexpected redis response %v", res)
	}
	count, _ := vals[0].(int64)
	startMs, _ := vals[1].(int64)

	return count, time.UnixMilli(startMs), nil
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}
