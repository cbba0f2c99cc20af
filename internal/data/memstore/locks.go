package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/target/prepflow/internal/core"
	"github.com/target/prepflow/internal/data"
)

type lease struct {
	value   string
	expires time.Time
}

// Locks is the in-memory core.JobLock and core.TriggerDeduper, for single-process deployments.
type Locks struct {
	mu    sync.Mutex
	clock data.TimeProvider
	keys  map[string]lease
}

var (
	_ core.JobLock        = (*Locks)(nil)
	_ core.TriggerDeduper = (*Locks)(nil)
)

// NewLocks creates an empty lock table. A nil clock uses system time.
func NewLocks(clock data.TimeProvider) *Locks {
	if clock == nil {
		clock = data.RealTimeProvider{}
	}
	return &Locks{clock: clock, keys: make(map[string]lease)}
}

// setNX stores value under key unless a live entry exists and returns the live value.
func (l *Locks) setNX(key, value string, ttl time.Duration) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if cur, ok := l.keys[key]; ok && cur.expires.After(now) {
		return cur.value, false
	}
	l.keys[key] = lease{value: value, expires: now.Add(ttl)}
	return value, true
}

// Acquire takes the execution lock of jobID for owner. An owner that already holds the lock
// gets it again with a fresh ttl.
func (l *Locks) Acquire(_ context.Context, jobID, owner string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := "job-lock:" + jobID
	now := l.clock.Now()
	if cur, ok := l.keys[key]; ok && cur.expires.After(now) && cur.value != owner {
		return false, nil
	}
	l.keys[key] = lease{value: owner, expires: now.Add(ttl)}
	return true, nil
}

// Release drops the lock if owner still holds it.
func (l *Locks) Release(_ context.Context, jobID, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := "job-lock:" + jobID
	if cur, ok := l.keys[key]; ok && cur.value == owner {
		delete(l.keys, key)
	}
	return nil
}

// Claim records jobID under key unless the key is held.
func (l *Locks) Claim(_ context.Context, key, jobID string, ttl time.Duration) (string, bool, error) {
	owner, ok := l.setNX("trigger:"+key, jobID, ttl)
	return owner, ok, nil
}
