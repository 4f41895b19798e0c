package merge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/alma/internal/model"
	"github.com/redis/go-redis/v9"
)

// Locker guards a merge run against a concurrent one
type Locker interface {
	// TryLock returns a release function, or model.ErrMergeInProgress when
	// another run holds the lock
	TryLock(ctx context.Context) (func(), error)
}

// LocalLocker is an in-process lock
type LocalLocker struct {
	mu sync.Mutex
}

// NewLocalLocker creates an in-process lock
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{}
}

// TryLock implements Locker
func (l *LocalLocker) TryLock(context.Context) (func(), error) {
	if !l.mu.TryLock() {
		return nil, model.ErrMergeInProgress
	}
	return l.mu.Unlock, nil
}

// releaseScript deletes the key only when it still holds our token
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker is a lock shared by every process pointing at one Redis.
// The TTL bounds how long a crashed run can hold it.
type RedisLocker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisLocker creates a Redis-backed lock on key
func NewRedisLocker(client *redis.Client, key string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisLocker{client: client, key: key, ttl: ttl}
}

// TryLock implements Locker
func (l *RedisLocker) TryLock(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire merge lock: %w", err)
	}
	if !ok {
		return nil, model.ErrMergeInProgress
	}
	return func() {
		// Release must run even when the merge context was cancelled
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{l.key}, token).Err()
	}, nil
}

// NewLocker builds the lock described by cfg. The Redis client is only
// dialled for the redis lock.
func NewLocker(cfg model.Config) Locker {
	if cfg.Merge.Lock != "redis" {
		return NewLocalLocker()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return NewRedisLocker(client, cfg.Merge.LockKey, cfg.Merge.LockTTL)
}
