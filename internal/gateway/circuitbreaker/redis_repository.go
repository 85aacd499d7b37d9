package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRepository shares window and pause state across platform instances.
// Grounded on the pack's GoRedisAdapter connect-and-ping pattern.
type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(addr, password string, db int) (*RedisRepository, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("circuitbreaker: connecting to redis: %w", err)
	}
	return &RedisRepository{client: client}, nil
}

const luaRecord = `
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

func (r *RedisRepository) Record(ctx context.Context, scope string, windowMs int64) (int64, time.Time, error) {
	countKey := fmt.Sprintf("circuitbreaker:{%s}:count", scope)
	startKey := fmt.Sprintf("circuitbreaker:{%s}:start", scope)
	nowMs := time.Now().UnixMilli()

	res, err := r.client.Eval(ctx, luaRecord, []string{countKey, startKey}, windowMs, nowMs).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("circuitbreaker: redis eval: %w", err)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return 0, time.Time{}, fmt.Errorf("circuitbreaker: unexpected redis response %v", res)
	}
	count, _ := vals[0].(int64)
	startMs, _ := vals[1].(int64)
	return count, time.UnixMilli(startMs), nil
}

func (r *RedisRepository) PausedUntil(ctx context.Context, scope string) (time.Time, error) {
	key := fmt.Sprintf("circuitbreaker:{%s}:paused_until", scope)
	val, err := r.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("circuitbreaker: reading pause state: %w", err)
	}
	return time.UnixMilli(val), nil
}

func (r *RedisRepository) SetPausedUntil(ctx context.Context, scope string, until time.Time) error {
	key := fmt.Sprintf("circuitbreaker:{%s}:paused_until", scope)
	ttl := time.Until(until)
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, key, until.UnixMilli(), ttl).Err(); err != nil {
		return fmt.Errorf("circuitbreaker: setting pause state: %w", err)
	}
	return nil
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}
