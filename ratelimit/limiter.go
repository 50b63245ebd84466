package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore"
)

var (
	// ErrRedisUnavailable wraps transport errors from the limiter's client.
	ErrRedisUnavailable = errors.New("rate limiter redis unavailable")
	ErrInvalidConfig    = errors.New("invalid rate limiter config")
)

const defaultPrefix = "authcore:rl"

// Config tunes the fixed window.
type Config struct {
	MaxAttempts int
	Window      time.Duration
	Prefix      string
}

var fixedWindowLua = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// Limiter counts attempts per key in Redis.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New validates cfg and returns a limiter over client.
func New(client redis.UniversalClient, cfg Config) (*Limiter, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: nil redis client", ErrInvalidConfig)
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("%w: MaxAttempts must be >= 1", ErrInvalidConfig)
	}
	if cfg.Window < time.Millisecond {
		return nil, fmt.Errorf("%w: Window must be >= 1ms", ErrInvalidConfig)
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	return &Limiter{redis: client, config: cfg}, nil
}

// FromConfig builds a limiter from the verification settings, or returns
// nil when MaxAttempts is 0.
func FromConfig(client redis.UniversalClient, cfg authcore.VerificationConfig) (*Limiter, error) {
	if cfg.MaxAttempts == 0 {
		return nil, nil
	}
	return New(client, Config{MaxAttempts: cfg.MaxAttempts, Window: cfg.AttemptWindow})
}

func (l *Limiter) key(k string) string { return l.config.Prefix + ":" + k }

// Allow records one attempt and returns authcore.ErrRateLimited once more
// than MaxAttempts have been recorded in the current window.
func (l *Limiter) Allow(ctx context.Context, key string) error {
	count, err := fixedWindowLua.Run(ctx, l.redis, []string{l.key(key)}, l.config.Window.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count > int64(l.config.MaxAttempts) {
		return authcore.ErrRateLimited
	}
	return nil
}

// Reset clears the counter for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the attempts recorded for key in the current window.
// A missing key reads as zero.
func (l *Limiter) Attempts(ctx context.Context, key string) (int, error) {
	count, err := l.redis.Get(ctx, l.key(key)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count, nil
}
