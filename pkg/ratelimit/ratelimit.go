// Package ratelimit provides a Redis-backed token-bucket rate limiter
// and an HTTP middleware that enforces it per remote address.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// Policy bounds one actor's request rate.
type Policy struct {
	RPM   int // tokens refilled per minute
	Burst int // bucket capacity
}

// DefaultPolicy allows 600 requests per minute with a burst of 60.
func DefaultPolicy() Policy {
	return Policy{RPM: 600, Burst: 60}
}

// Store abstracts the token-bucket backing store.
type Store interface {
	Allow(ctx context.Context, actorID string, policy Policy, cost int) (bool, error)
}

// tokenBucketScript atomically refills and consumes a bucket kept as a
// Redis hash, keyed per actor. Mirrors a classic Lua token-bucket: read
// state, refill by elapsed time, consume if enough tokens remain,
// write state back, and let the key expire on its own if the actor
// goes quiet.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed*rate)
    last_refill = now
end

local allowed = 0
if tokens >= cost then
    tokens = tokens - cost
    allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 60)

return {allowed, tokens}
`)

// RedisStore implements Store using a shared Redis instance, so the
// limit is enforced across every node-server replica rather than
// per-process.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials addr lazily (go-redis connects on first use).
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// Allow runs the token-bucket script for actorID.
func (s *RedisStore) Allow(ctx context.Context, actorID string, policy Policy, cost int) (bool, error) {
	key := fmt.Sprintf("b3nd:ratelimit:%s", actorID)
	rate := float64(policy.RPM) / 60.0
	if rate <= 0 {
		rate = 1.0
	}
	now := float64(time.Now().UnixMicro()) / 1e6

	res, err := tokenBucketScript.Run(ctx, s.client, []string{key}, rate, policy.Burst, cost, now).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis script: %w", err)
	}
	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return false, fmt.Errorf("ratelimit: unexpected script result")
	}
	allowed, _ := results[0].(int64)
	return allowed == 1, nil
}

// Close releases the underlying Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Middleware enforces policy against store, keyed on the request's
// remote address. It fails open when store is nil or the store errors,
// so an unreachable Redis never takes the whole node surface down.
func Middleware(store Store, policy Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil {
				next.ServeHTTP(w, r)
				return
			}
			allowed, err := store.Allow(r.Context(), r.RemoteAddr, policy, 1)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				retryAfter := 60 / policy.RPM
				if retryAfter < 1 {
					retryAfter = 1
				}
				writeTooManyRequests(w, retryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeTooManyRequests(w http.ResponseWriter, retryAfterSeconds int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSeconds))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
}
