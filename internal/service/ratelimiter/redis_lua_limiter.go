// Package ratelimiter implements a token bucket shared across collector
// processes via Redis, with a Postgres mirror so buckets survive Redis
// restarts. The Reddit and OpenRouter clients consult it before every
// upstream call.
package ratelimiter

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter gates upstream calls by logical key.
type Limiter interface {
	Allow(ctx context.Context, key string, cost int64) (allowed bool, retryAfter time.Duration, err error)
}

// BucketConfig sizes one bucket. RefillRate is tokens per second.
type BucketConfig struct {
	Capacity   int64
	RefillRate float64
}

// PerMinute builds a bucket that admits n calls per minute with burst n.
func PerMinute(n int) BucketConfig {
	if n <= 0 {
		return BucketConfig{}
	}
	return BucketConfig{Capacity: int64(n), RefillRate: float64(n) / 60.0}
}

// RedisLuaLimiter is a Redis-backed token bucket. The refill and take are
// done atomically in a Lua script so concurrent collectors share one
// budget. A nil limiter allows everything, so call sites need no guard.
type RedisLuaLimiter struct {
	redis   *redis.Client
	mirror  MirrorFunc
	buckets map[string]BucketConfig
	script  *redis.Script
	mu      sync.RWMutex
}

// MirrorFunc writes one bucket snapshot to durable storage.
type MirrorFunc func(ctx context.Context, key string, cfg BucketConfig, tokens float64, lastRefill time.Time)

// New builds a limiter over rdb with the given buckets. mirror may be nil.
func New(rdb *redis.Client, buckets map[string]BucketConfig, mirror MirrorFunc) *RedisLuaLimiter {
	if rdb == nil {
		return nil
	}
	if buckets == nil {
		buckets = map[string]BucketConfig{}
	}
	return &RedisLuaLimiter{
		redis:   rdb,
		mirror:  mirror,
		buckets: buckets,
		script:  redis.NewScript(luaTokenBucket),
	}
}

const luaTokenBucket = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local tokens = capacity
local last_refill = now

local data = redis.call("HMGET", key, "tokens", "last_refill")
if data[1] ~= false and data[1] ~= nil then
  tokens = tonumber(data[1])
end
if data[2] ~= false and data[2] ~= nil then
  last_refill = tonumber(data[2])
end
if last_refill == nil then
  last_refill = now
end

local delta = now - last_refill
if delta < 0 then
  delta = 0
end

tokens = math.min(capacity, tokens + delta * refill_rate)
last_refill = now

local allowed = 0
local retry_after = 0

if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
else
  local shortage = cost - tokens
  if refill_rate > 0 then
    retry_after = shortage / refill_rate
  end
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)

return { allowed, tokens, last_refill, retry_after }
`

// Allow takes cost tokens from the bucket for key. Unknown keys, a nil
// limiter, and Redis errors all admit the call; the caller's own pacing
// (the fixed inter-request delay) still applies.
func (l *RedisLuaLimiter) Allow(ctx context.Context, key string, cost int64) (bool, time.Duration, error) {
	if l == nil || l.redis == nil {
		return true, 0, nil
	}
	l.mu.RLock()
	cfg, ok := l.buckets[key]
	l.mu.RUnlock()
	if !ok || cfg.Capacity <= 0 || cfg.RefillRate <= 0 {
		return true, 0, nil
	}
	if cost <= 0 {
		cost = 1
	}

	nowSec := float64(time.Now().UnixNano()) / 1e9
	res, err := l.script.Run(ctx, l.redis, []string{"rate:" + key}, cfg.Capacity, cfg.RefillRate, nowSec, cost).Result()
	if err != nil {
		slog.Error("rate limiter script error", slog.String("key", key), slog.Any("error", err))
		return true, 0, err
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) < 4 {
		slog.Error("rate limiter unexpected script result", slog.String("key", key), slog.Any("result", res))
		return true, 0, nil
	}

	allowed := toInt64(vals[0]) == 1
	tokens := toFloat64(vals[1])
	lastRefillSec := toFloat64(vals[2])
	retryAfter := time.Duration(toFloat64(vals[3]) * float64(time.Second))

	if l.mirror != nil {
		l.mirror(ctx, key, cfg, tokens, secToTime(lastRefillSec))
	}
	return allowed, retryAfter, nil
}

// Wait blocks until a token is available for key or the context is done.
func (l *RedisLuaLimiter) Wait(ctx context.Context, key string) error {
	for {
		allowed, retryAfter, err := l.Allow(ctx, key, 1)
		if err != nil || allowed {
			return nil
		}
		if retryAfter <= 0 {
			retryAfter = 100 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryAfter):
		}
	}
}

// SetBucketConfig updates a bucket at runtime, e.g. when a provider's
// rate limit headers report a different budget. Safe for concurrent use.
func (l *RedisLuaLimiter) SetBucketConfig(key string, cfg BucketConfig) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets[key] = cfg
}

// Warm seeds Redis buckets from previously mirrored state. rows carries
// (key, tokens, lastRefill seconds) tuples loaded from storage.
func (l *RedisLuaLimiter) Warm(ctx context.Context, rows []WarmRow) error {
	if l == nil || l.redis == nil {
		return nil
	}
	for _, r := range rows {
		if err := l.redis.HMSet(ctx, "rate:"+r.Key, "tokens", r.Tokens, "last_refill", r.LastRefillSec).Err(); err != nil {
			slog.Error("rate limiter warm failed", slog.String("key", r.Key), slog.Any("error", err))
		}
	}
	return nil
}

// WarmRow is one mirrored bucket snapshot.
type WarmRow struct {
	Key           string
	Tokens        float64
	LastRefillSec float64
}

func secToTime(sec float64) time.Time {
	s := int64(sec)
	ns := int64((sec - float64(s)) * 1e9)
	if ns < 0 {
		ns = 0
	}
	return time.Unix(s, ns)
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func toFloat64(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case int:
		return float64(t)
	default:
		return math.NaN()
	}
}
