package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	EnableScanThrottle bool
	MaxScanAttempts    int
	ScanWindow         time.Duration
}

// Limiter throttles student QR scan attempts using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client. A non-empty
// namespace is prepended to every key.
func New(redisClient redis.UniversalClient, namespace string, cfg Config) *Limiter {
	prefix := ""
	if namespace != "" {
		prefix = namespace + ":"
	}
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
		config: cfg,
	}
}

// CheckScan records a scan attempt for studentID and returns ErrRateLimited once
// the attempt budget of the current window is spent.
func (l *Limiter) CheckScan(ctx context.Context, studentID string) error {
	if l == nil || !l.config.EnableScanThrottle {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.scanKey(studentID), l.config.ScanWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxScanAttempts) {
		return ErrRateLimited
	}

	return nil
}

// ScanAttempts returns the attempt counter of the current window for studentID.
func (l *Limiter) ScanAttempts(ctx context.Context, studentID string) (int, error) {
	count, err := l.redis.Get(ctx, l.scanKey(studentID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// ResetScan clears the attempt counter for studentID.
func (l *Limiter) ResetScan(ctx context.Context, studentID string) error {
	if err := l.redis.Del(ctx, l.scanKey(studentID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) scanKey(studentID string) string {
	return l.prefix + "sr:" + studentID
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
