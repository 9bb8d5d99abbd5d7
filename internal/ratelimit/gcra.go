package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "imageoptimizer:ratelimit"

// Limiter decides whether subject may spend cost units of its allowance.
type Limiter interface {
	Allow(ctx context.Context, subject string, cost int64) (Decision, error)
}

type Decision struct {
	Allowed    bool
	Cost       int64
	Remaining  int64
	RetryAfter time.Duration
}

type Options struct {
	// Capacity is the allowance a subject can burst through at once.
	Capacity int64
	// Window is how long a fully spent allowance takes to come back.
	Window    time.Duration
	KeyPrefix string
}

// gcraScript keeps a single theoretical arrival time per subject. A request
// of cost n pushes it forward by n emission intervals and is admitted while
// it stays within one window of now.
var gcraScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local interval = tonumber(ARGV[2])
local window = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local tat = tonumber(redis.call("GET", KEYS[1]) or now)
if tat < now then
  tat = now
end

local next_tat = tat + cost * interval
local admit_at = next_tat - window
if admit_at > now then
  return {0, math.floor((window - (tat - now)) / interval), math.ceil(admit_at - now)}
end

next_tat = math.ceil(next_tat)
redis.call("SET", KEYS[1], next_tat, "PX", math.max(1, next_tat - now))
return {1, math.floor((window - (next_tat - now)) / interval), 0}
`)

// RedisLimiter is a generic cell rate limiter backed by Redis, equivalent to
// a token bucket of Capacity tokens refilled evenly over Window.
type RedisLimiter struct {
	client    redis.UniversalClient
	capacity  int64
	interval  float64
	window    time.Duration
	keyPrefix string
	now       func() time.Time
}

func NewRedisLimiter(client redis.UniversalClient, opts Options) (*RedisLimiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.Capacity <= 0 {
		return nil, errors.New("capacity must be positive")
	}
	if opts.Window < time.Millisecond {
		return nil, errors.New("window must be at least 1ms")
	}
	if strings.TrimSpace(opts.KeyPrefix) == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}

	return &RedisLimiter{
		client:    client,
		capacity:  opts.Capacity,
		interval:  float64(opts.Window.Milliseconds()) / float64(opts.Capacity),
		window:    opts.Window,
		keyPrefix: opts.KeyPrefix,
		now:       time.Now,
	}, nil
}

// Allow charges cost against subject. Costs below one count as one and costs
// above the capacity are clamped to it, so every request can eventually pass.
func (l *RedisLimiter) Allow(ctx context.Context, subject string, cost int64) (Decision, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "anonymous"
	}
	cost = min(max(cost, 1), l.capacity)

	reply, err := gcraScript.Run(
		ctx,
		l.client,
		[]string{l.keyPrefix + ":" + subject},
		l.now().UnixMilli(),
		l.interval,
		l.window.Milliseconds(),
		cost,
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", subject, err)
	}
	if len(reply) != 3 {
		return Decision{}, fmt.Errorf("rate limit %s: unexpected reply %v", subject, reply)
	}

	return Decision{
		Allowed:    reply[0] == 1,
		Cost:       cost,
		Remaining:  max(reply[1], 0),
		RetryAfter: time.Duration(reply[2]) * time.Millisecond,
	}, nil
}

// CostForBytes charges one unit per started bytesPerUnit of payload, with a
// minimum of one. A non-positive bytesPerUnit makes every request cost one.
func CostForBytes(n, bytesPerUnit int64) int64 {
	if n <= 0 || bytesPerUnit <= 0 {
		return 1
	}
	return (n + bytesPerUnit - 1) / bytesPerUnit
}
