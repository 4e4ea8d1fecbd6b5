package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles a named operation per subject using Redis INCR + EXPIRE.
// A RateLimiter instance is scoped to one operation (e.g. "create_job"); the
// subject passed to Check/Record is typically a tenant_id or tenant+instance pair.
type RateLimiter struct {
	redis      *redis.Client
	namespace  string
	maxAttempt int
	window     time.Duration
}

// NewRateLimiter creates a rate limiter for a named operation. maxAttempt is
// the max calls allowed per subject within the given window.
func NewRateLimiter(rdb *redis.Client, namespace string, maxAttempt int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:      rdb,
		namespace:  namespace,
		maxAttempt: maxAttempt,
		window:     window,
	}
}

// RateLimitResult holds the result of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	RetryAt   time.Time
}

// Check returns whether the given subject is allowed to perform the operation.
// It does not consume a slot; call Record after the operation is admitted.
func (rl *RateLimiter) Check(ctx context.Context, subject string) (*RateLimitResult, error) {
	key := rl.key(subject)

	count, err := rl.redis.Get(ctx, key).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("checking rate limit: %w", err)
	}

	if count >= rl.maxAttempt {
		ttl, err := rl.redis.TTL(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("getting TTL: %w", err)
		}
		return &RateLimitResult{
			Allowed:   false,
			Remaining: 0,
			RetryAt:   time.Now().Add(ttl),
		}, nil
	}

	return &RateLimitResult{
		Allowed:   true,
		Remaining: rl.maxAttempt - count,
	}, nil
}

// Record records one occurrence of the operation for the given subject.
func (rl *RateLimiter) Record(ctx context.Context, subject string) error {
	key := rl.key(subject)

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording rate limit: %w", err)
	}

	// Only set the expiry on the first increment.
	if incr.Val() == 1 {
		rl.redis.Expire(ctx, key, rl.window)
	}

	return nil
}

// Reset clears the rate limit counter for a given subject.
func (rl *RateLimiter) Reset(ctx context.Context, subject string) error {
	return rl.redis.Del(ctx, rl.key(subject)).Err()
}

func (rl *RateLimiter) key(subject string) string {
	return fmt.Sprintf("ratelimit:%s:%s", rl.namespace, subject)
}
