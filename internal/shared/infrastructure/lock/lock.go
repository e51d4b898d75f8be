// Package lock provides per-user advisory locks that serialize schedule
// rebuilds. Two concurrent rebuilds for the same user must not interleave;
// the second caller waits and observes the first caller's result.
package lock

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// UserLocker serializes work per user.
type UserLocker interface {
	// Acquire blocks until the user's lock is held or ctx is done.
	// The returned release function must be called exactly once.
	Acquire(ctx context.Context, userID uuid.UUID) (release func(), err error)
}

// LocalLocker implements UserLocker with in-process mutexes. Suitable for
// single-instance deployments and tests.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewLocalLocker creates an in-process user locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// Acquire takes the per-user mutex.
func (l *LocalLocker) Acquire(ctx context.Context, userID uuid.UUID) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}
