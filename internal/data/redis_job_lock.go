package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/prepflow/internal/core"
)

const (
	jobLockPrefix = "prepflow:job-lock:"
	triggerPrefix = "prepflow:trigger:"
	minLockTTL    = time.Second
)

// releaseScript deletes the lock only while it still belongs to the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisJobLock implements core.JobLock with SET NX leases.
type RedisJobLock struct {
	client redis.UniversalClient
}

var _ core.JobLock = (*RedisJobLock)(nil)

// NewRedisJobLock creates a RedisJobLock on client.
func NewRedisJobLock(client redis.UniversalClient) *RedisJobLock {
	return &RedisJobLock{client: client}
}

// setNX atomically sets key to value with ttl unless the key exists.
func setNX(ctx context.Context, client redis.UniversalClient, key, value string, ttl time.Duration) (bool, error) {
	if ttl < minLockTTL {
		ttl = minLockTTL
	}
	// SETNX followed by EXPIRE is not atomic; SET with NX and a TTL is.
	status, err := client.SetArgs(ctx, key, value, redis.SetArgs{Mode: "NX", TTL: ttl}).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis SET NX: %w", err)
	}
	return status == "OK", nil
}

// Acquire takes the lock for owner. An owner that already holds the lock gets it again with a fresh ttl.
func (l *RedisJobLock) Acquire(ctx context.Context, jobID, owner string, ttl time.Duration) (bool, error) {
	if jobID == "" || owner == "" {
		return false, errors.New("job id and owner are required")
	}
	key := jobLockPrefix + jobID
	ok, err := setNX(ctx, l.client, key, owner, ttl)
	if err != nil || ok {
		return ok, err
	}
	holder, err := l.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between the two calls.
		return setNX(ctx, l.client, key, owner, ttl)
	}
	if err != nil {
		return false, fmt.Errorf("redis get: %w", err)
	}
	if holder != owner {
		return false, nil
	}
	if err := l.client.Expire(ctx, key, max(ttl, minLockTTL)).Err(); err != nil {
		return false, fmt.Errorf("redis expire: %w", err)
	}
	return true, nil
}

// Release drops the lock if owner still holds it.
func (l *RedisJobLock) Release(ctx context.Context, jobID, owner string) error {
	if err := releaseScript.Run(ctx, l.client, []string{jobLockPrefix + jobID}, owner).Err(); err != nil &&
		!errors.Is(err, redis.Nil) {
		return fmt.Errorf("release job lock: %w", err)
	}
	return nil
}

// RedisTriggerDeduper implements core.TriggerDeduper with SET NX keys.
type RedisTriggerDeduper struct {
	client redis.UniversalClient
}

var _ core.TriggerDeduper = (*RedisTriggerDeduper)(nil)

// NewRedisTriggerDeduper creates a RedisTriggerDeduper on client.
func NewRedisTriggerDeduper(client redis.UniversalClient) *RedisTriggerDeduper {
	return &RedisTriggerDeduper{client: client}
}

// Claim stores jobID under key unless another job holds it, and returns the holder.
func (d *RedisTriggerDeduper) Claim(ctx context.Context, key, jobID string, ttl time.Duration) (string, bool, error) {
	if key == "" {
		return "", false, errors.New("key cannot be empty")
	}
	full := triggerPrefix + key
	ok, err := setNX(ctx, d.client, full, jobID, ttl)
	if err != nil {
		return "", false, err
	}
	if ok {
		return jobID, true, nil
	}
	owner, err := d.client.Get(ctx, full).Result()
	if errors.Is(err, redis.Nil) {
		ok, err = setNX(ctx, d.client, full, jobID, ttl)
		if err != nil || !ok {
			return "", false, err
		}
		return jobID, true, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return owner, owner == jobID, nil
}

// Health checks the Redis connection.
func (l *RedisJobLock) Health(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
