package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMiss is returned when a key does not exist or has expired.
	ErrMiss = errors.New("cache miss")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("cache unavailable")
)

// Cache is the ephemeral key/value contract the attendance engine relies on.
//
// All methods are safe for concurrent use. Single-key operations are atomic;
// [Cache.Take], [Cache.ExpireWithExtra] and [Cache.AddMemberWhile] are atomic across
// the keys they touch.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, keys ...string) error
	// Replace overwrites an existing key and keeps its lifetime. It reports whether
	// the key existed; a missing key is left unset.
	Replace(ctx context.Context, key string, value []byte) (bool, error)

	// TTL returns the remaining lifetime of key. A key without expiry reports a
	// negative duration. A missing key returns ErrMiss.
	TTL(ctx context.Context, key string) (time.Duration, error)
	// Expire resets the lifetime of key and reports whether the key existed.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// ExpireWithExtra adds extra to the current lifetime of key and returns the new
	// lifetime. A missing key returns ErrMiss.
	ExpireWithExtra(ctx context.Context, key string, extra time.Duration) (time.Duration, error)

	// AddMemberWhile adds member to the set at key only while guardKey exists, and
	// aligns the set lifetime with the guard. It reports whether the member was added.
	AddMemberWhile(ctx context.Context, key, guardKey, member string) (bool, error)
	RemoveMember(ctx context.Context, key, member string) error
	Members(ctx context.Context, key string) ([]string, error)

	// Take reads and deletes key in one step. Concurrent callers never both
	// observe the same value.
	Take(ctx context.Context, key string) ([]byte, error)

	Ping(ctx context.Context) error
}
