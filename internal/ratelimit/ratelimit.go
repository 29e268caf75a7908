// Package ratelimit provides the two abuse brakes the API uses: a fixed
// window request throttle and a failed-login lockout. Both ride on Redis
// counters with a TTL window, so limits hold across replicas and survive
// restarts.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"authd/internal/kv"
)

var (
	// ErrRateLimited reports an exhausted request window.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrLockedOut reports an identifier under an active login lockout.
	ErrLockedOut = errors.New("too many failed attempts, try again later")
	// ErrUnavailable reports an unreachable counter backend.
	ErrUnavailable = errors.New("ratelimit: backend unavailable")
)

// Limiter is a fixed-window throttle. A request consumes weight units from
// the window; the window starts at the first hit and resets when its TTL
// lapses.
type Limiter struct {
	redis  redis.UniversalClient
	limit  int64
	window time.Duration
}

// NewLimiter builds a throttle allowing limit units per window.
func NewLimiter(client redis.UniversalClient, limit int, window time.Duration) *Limiter {
	return &Limiter{redis: client, limit: int64(limit), window: window}
}

// Allow consumes weight units for key, failing with ErrRateLimited once the
// window is exhausted. The expiry is set when the counter is first created,
// which IncrBy signals by returning exactly the initial weight.
func (l *Limiter) Allow(ctx context.Context, key string, weight int) error {
	redisKey := kv.Key(kv.BaseRequestThrottle, key)

	count, err := l.redis.IncrBy(ctx, redisKey, int64(weight)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == int64(weight) {
		if err := l.redis.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if count > l.limit {
		return ErrRateLimited
	}
	return nil
}

// Lockout tracks consecutive failed logins per identifier and blocks further
// attempts once the threshold is reached, until the window expires.
type Lockout struct {
	redis     redis.UniversalClient
	threshold int64
	window    time.Duration
}

// NewLockout builds a lockout tripping after threshold failures, holding
// for window.
func NewLockout(client redis.UniversalClient, threshold int, window time.Duration) *Lockout {
	return &Lockout{redis: client, threshold: int64(threshold), window: window}
}

// Check fails with ErrLockedOut when identifier has an active lockout.
// Call it before verifying credentials so a locked account leaks nothing
// about password correctness.
func (l *Lockout) Check(ctx context.Context, identifier string) error {
	count, err := l.redis.Get(ctx, kv.Key(kv.BaseFailedLoginAttempts, identifier)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count >= l.threshold {
		return ErrLockedOut
	}
	return nil
}

// RecordFailure counts one failed attempt. The window opens at the first
// failure; each subsequent failure rides the existing expiry, so the
// lockout clears a fixed time after the first failure, not the last.
func (l *Lockout) RecordFailure(ctx context.Context, identifier string) error {
	key := kv.Key(kv.BaseFailedLoginAttempts, identifier)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return nil
}

// Reset clears the failure counter after a successful login.
func (l *Lockout) Reset(ctx context.Context, identifier string) error {
	if err := l.redis.Del(ctx, kv.Key(kv.BaseFailedLoginAttempts, identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
