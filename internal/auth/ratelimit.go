package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type LimitResult struct {
	Allowed    bool
	Remaining  int
	Limit      int
	RetryAfter time.Duration
}

// Limiter counts attempts per key over a rolling window. An attempt names
// one or more keys; it is rejected when any key is at its limit, and a
// rejected attempt is not counted against any of them.
type Limiter interface {
	Attempt(ctx context.Context, keys ...string) (LimitResult, error)
}

// RateLimiter is the in-process sliding window limiter.
type RateLimiter struct {
	attempts map[string][]time.Time
	limit    int
	mutex    sync.Mutex
	window   time.Duration
	now      func() time.Time
	stop     chan struct{}
	once     sync.Once
}

func NewRateLimiter(limit int, window time.Duration, now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	rateLimiter := &RateLimiter{
		attempts: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      now,
		stop:     make(chan struct{}),
	}
	go rateLimiter.cleanup()
	return rateLimiter
}

// drop keys whose attempts have all left the window
func (rateLimiter *RateLimiter) cleanup() {
	ticker := time.NewTicker(rateLimiter.window)
	defer ticker.Stop()
	for {
		select {
		case <-rateLimiter.stop:
			return
		case <-ticker.C:
			rateLimiter.mutex.Lock()
			now := rateLimiter.now()
			for key := range rateLimiter.attempts {
				if len(rateLimiter.prune(key, now)) == 0 {
					delete(rateLimiter.attempts, key)
				}
			}
			rateLimiter.mutex.Unlock()
		}
	}
}

// Close stops the cleanup goroutine.
func (rateLimiter *RateLimiter) Close() {
	rateLimiter.once.Do(func() { close(rateLimiter.stop) })
}

// prune keeps the attempts of key still inside the window. Caller holds mutex.
func (rateLimiter *RateLimiter) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-rateLimiter.window)
	kept := rateLimiter.attempts[key][:0]
	for _, at := range rateLimiter.attempts[key] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	rateLimiter.attempts[key] = kept
	return kept
}

func (rateLimiter *RateLimiter) Attempt(_ context.Context, keys ...string) (LimitResult, error) {
	rateLimiter.mutex.Lock()
	defer rateLimiter.mutex.Unlock()

	now := rateLimiter.now()
	result := LimitResult{Allowed: true, Limit: rateLimiter.limit, Remaining: rateLimiter.limit}
	for _, key := range keys {
		recent := rateLimiter.prune(key, now)
		if len(recent) >= rateLimiter.limit {
			result.Allowed = false
			result.Remaining = 0
			if wait := recent[0].Add(rateLimiter.window).Sub(now); wait > result.RetryAfter {
				result.RetryAfter = wait
			}
			continue
		}
		if left := rateLimiter.limit - len(recent) - 1; left < result.Remaining {
			result.Remaining = left
		}
	}
	if !result.Allowed {
		return result, nil
	}
	for _, key := range keys {
		rateLimiter.attempts[key] = append(rateLimiter.attempts[key], now)
	}
	return result, nil
}

// Allow records a single-key attempt.
func (rateLimiter *RateLimiter) Allow(key string) bool {
	res, _ := rateLimiter.Attempt(context.Background(), key)
	return res.Allowed
}

// RedisLimiter shares the sliding window between processes using sorted
// sets. The check and the insert run in one script.
type RedisLimiter struct {
	client    *redis.Client
	keyPrefix string
	limit     int
	window    time.Duration
	now       func() time.Time
}

func NewRedisLimiter(client *redis.Client, keyPrefix string, limit int, window time.Duration, now func() time.Time) *RedisLimiter {
	if now == nil {
		now = time.Now
	}
	return &RedisLimiter{client: client, keyPrefix: keyPrefix, limit: limit, window: window, now: now}
}

var slidingWindowScript = redis.NewScript(`
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	local reset_at = 0
	local remaining = limit
	for _, key in ipairs(KEYS) do
		redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
		local current = redis.call('ZCARD', key)
		if current >= limit then
			local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
			if oldest and #oldest >= 2 then
				local r = tonumber(oldest[2]) + window_ms
				if r > reset_at then
					reset_at = r
				end
			else
				reset_at = now + window_ms
			end
		elseif limit - current - 1 < remaining then
			remaining = limit - current - 1
		end
	end

	if reset_at > 0 then
		return {0, 0, reset_at}
	end

	local expire_seconds = math.ceil(window_ms / 1000)
	for _, key in ipairs(KEYS) do
		local counter = redis.call('INCR', key .. ':counter')
		redis.call('ZADD', key, now, ARGV[1] .. ':' .. counter)
		redis.call('EXPIRE', key, expire_seconds)
		redis.call('EXPIRE', key .. ':counter', expire_seconds)
	end
	return {1, remaining, 0}
`)

func (l *RedisLimiter) Attempt(ctx context.Context, keys ...string) (LimitResult, error) {
	now := l.now()
	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = l.keyPrefix + k
	}

	nowMs := now.UnixMilli()
	windowStartMs := now.Add(-l.window).UnixMilli()
	res, err := slidingWindowScript.Run(ctx, l.client, redisKeys, nowMs, windowStartMs, l.limit, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return LimitResult{}, fmt.Errorf("redis script error: %w", err)
	}
	if len(res) != 3 {
		return LimitResult{}, fmt.Errorf("unexpected Redis response length: %d", len(res))
	}

	result := LimitResult{Allowed: res[0] == 1, Remaining: int(res[1]), Limit: l.limit}
	if !result.Allowed {
		result.RetryAfter = time.UnixMilli(res[2]).Sub(now)
	}
	return result, nil
}
