package gate

import (
	"context"
	"sync"
	"time"
)

// CachedResolver keeps resolved profiles for ttl so that permission checks
// on hot endpoints do not query the profile tables every time. Both hits and
// "no profile" answers are cached; errors are not.
type CachedResolver[U comparable] struct {
	inner ProfileResolver[U]
	ttl   time.Duration
	now   func() time.Time

	mu      sync.RWMutex
	entries map[U]cacheEntry
}

type cacheEntry struct {
	profile   Profile
	expiresAt time.Time
}

func NewCachedResolver[U comparable](inner ProfileResolver[U], ttl time.Duration) *CachedResolver[U] {
	return &CachedResolver[U]{
		inner:   inner,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[U]cacheEntry),
	}
}

// WithClock replaces the time source. Intended for tests.
func (r *CachedResolver[U]) WithClock(now func() time.Time) *CachedResolver[U] {
	r.now = now
	return r
}

func (r *CachedResolver[U]) cached(user U) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[user]
	if !ok || !r.now().Before(e.expiresAt) {
		return nil, false
	}
	return e.profile, true
}

// Resolve returns the cached profile of user or asks the inner resolver.
func (r *CachedResolver[U]) Resolve(ctx context.Context, user U) (Profile, error) {
	if p, ok := r.cached(user); ok {
		return p, nil
	}
	p, err := r.inner.Resolve(ctx, user)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.entries[user] = cacheEntry{profile: p, expiresAt: r.now().Add(r.ttl)}
	r.mu.Unlock()
	return p, nil
}

// Invalidate drops one user, e.g. after their profile assignment changed.
func (r *CachedResolver[U]) Invalidate(user U) {
	r.mu.Lock()
	delete(r.entries, user)
	r.mu.Unlock()
}

// InvalidateAll drops every entry, e.g. after a profile's permissions changed.
func (r *CachedResolver[U]) InvalidateAll() {
	r.mu.Lock()
	r.entries = make(map[U]cacheEntry)
	r.mu.Unlock()
}

// Len is the number of entries held, expired ones included.
func (r *CachedResolver[U]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Cleanup evicts expired entries and reports how many were removed. Expired
// entries are never served, but users who stop calling in would otherwise
// stay in memory.
func (r *CachedResolver[U]) Cleanup(context.Context) (int64, error) {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for user, e := range r.entries {
		if !now.Before(e.expiresAt) {
			delete(r.entries, user)
			n++
		}
	}
	return n, nil
}
