package controller

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Locker serializes runs that contend on the same capacity scope.
// Acquire blocks until the scope is held or ctx is done.
type Locker interface {
	Acquire(ctx context.Context, scope string) (release func(), err error)
}

// LocalLocker serializes runs within one process.
type LocalLocker struct {
	mu     sync.Mutex
	scopes map[string]chan struct{}
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{scopes: make(map[string]chan struct{})}
}

func (l *LocalLocker) Acquire(ctx context.Context, scope string) (func(), error) {
	l.mu.Lock()
	sem, ok := l.scopes[scope]
	if !ok {
		sem = make(chan struct{}, 1)
		l.scopes[scope] = sem
	}
	l.mu.Unlock()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to acquire scope %q: %w", scope, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-sem })
	}, nil
}

// ScopeLock is the Redis lock surface. *schedule.Client satisfies it.
type ScopeLock interface {
	Lock(ctx context.Context, scope string, ttl time.Duration) (func(), error)
}

// RedisLocker serializes runs across processes sharing one Redis instance.
type RedisLocker struct {
	client ScopeLock
	ttl    time.Duration
}

// NewRedisLocker creates a distributed locker whose holds expire after ttl.
func NewRedisLocker(client ScopeLock, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, scope string) (func(), error) {
	return l.client.Lock(ctx, scope, l.ttl)
}
