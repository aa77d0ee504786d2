package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outlives any single job; a crashed worker frees the lock on expiry.
const defaultLockTTL = time.Hour

// Lock keeps one cron-worker replica on a given job at a time.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	// Extend pushes out the expiry and reports whether the lock is still held.
	Extend(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Locker hands out the lock guarding a named job.
type Locker interface {
	Lock(job string) Lock
}

type lockClient interface {
	AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, owner string) (bool, error)
	ExtendLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
}

// RedisLocker issues per-job locks scoped to one deployment environment.
type RedisLocker struct {
	client lockClient
	scope  string
	ttl    time.Duration
}

func NewRedisLocker(client lockClient, scope string, ttl time.Duration) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis client required for cron locks")
	}
	if scope == "" {
		scope = "local"
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{client: client, scope: scope, ttl: ttl}, nil
}

func (l *RedisLocker) Lock(job string) Lock {
	return &redisLock{
		client: l.client,
		name:   fmt.Sprintf("cron:%s:%s", l.scope, job),
		ttl:    l.ttl,
	}
}

type redisLock struct {
	client lockClient
	name   string
	ttl    time.Duration
	owner  string
}

func (l *redisLock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.client.AcquireLock(ctx, l.name, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.name, err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

func (l *redisLock) Extend(ctx context.Context) (bool, error) {
	if l.owner == "" {
		return false, nil
	}
	ok, err := l.client.ExtendLock(ctx, l.name, l.owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("extend %s: %w", l.name, err)
	}
	if !ok {
		l.owner = ""
	}
	return ok, nil
}

// Release is a no-op when the lock was never held or has since expired and
// been taken by another replica.
func (l *redisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	if _, err := l.client.ReleaseLock(ctx, l.name, l.owner); err != nil {
		return fmt.Errorf("release %s: %w", l.name, err)
	}
	l.owner = ""
	return nil
}
