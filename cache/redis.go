package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const takeScript = `
local value = redis.call("GET", KEYS[1])
if value then
  redis.call("DEL", KEYS[1])
end
return value
`

var takeLua = redis.NewScript(takeScript)

const extendScript = `
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  return ttl
end
local next = ttl + tonumber(ARGV[1])
redis.call("PEXPIRE", KEYS[1], next)
return next
`

var extendLua = redis.NewScript(extendScript)

const addMemberScript = `
local ttl = redis.call("PTTL", KEYS[2])
if ttl <= 0 then
  return 0
end
redis.call("SADD", KEYS[1], ARGV[1])
redis.call("PEXPIRE", KEYS[1], ttl)
return 1
`

var addMemberLua = redis.NewScript(addMemberScript)

// Redis implements [Cache] over a go-redis client.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis returns a [Redis] cache using client. Standalone, cluster and failover
// clients are all accepted.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("cache ttl must be > 0")
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return data, nil
}

func (r *Redis) Replace(ctx context.Context, key string, value []byte) (bool, error) {
	err := r.client.SetArgs(ctx, key, value, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return true, nil
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *Redis) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// go-redis passes the -2 (missing) and -1 (persistent) sentinels through unscaled.
	switch ttl {
	case -2:
		return 0, ErrMiss
	case -1:
		return -1, nil
	}
	return ttl, nil
}

func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.PExpire(ctx, key, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ok, nil
}

func (r *Redis) ExpireWithExtra(ctx context.Context, key string, extra time.Duration) (time.Duration, error) {
	next, err := extendLua.Run(ctx, r.client, []string{key}, extra.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	switch {
	case next == -2:
		return 0, ErrMiss
	case next < 0:
		return -1, nil
	}
	return time.Duration(next) * time.Millisecond, nil
}

func (r *Redis) AddMemberWhile(ctx context.Context, key, guardKey, member string) (bool, error) {
	added, err := addMemberLua.Run(ctx, r.client, []string{key, guardKey}, member).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return added == 1, nil
}

func (r *Redis) RemoveMember(ctx context.Context, key, member string) error {
	if err := r.client.SRem(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *Redis) Members(ctx context.Context, key string) ([]string, error) {
	members, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return members, nil
}

func (r *Redis) Take(ctx context.Context, key string) ([]byte, error) {
	value, err := takeLua.Run(ctx, r.client, []string{key}).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return []byte(value), nil
}

func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
