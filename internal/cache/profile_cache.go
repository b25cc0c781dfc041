// Package cache implements the process-wide profile cache.  Profile reads
// happen on nearly every request, so results are kept for a bounded time and
// concurrent fetches for the same user are collapsed into one store read.
// The cache is an explicitly constructed object with an injected clock and
// loader rather than package-level state, which keeps tests deterministic
// and invalidation visible at the call sites that own it.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"bazaaradmin/internal/model"
	"bazaaradmin/internal/repository"
)

// DefaultTTL is how long a cached profile (or cached absence) stays fresh.
const DefaultTTL = 5 * time.Minute

// DefaultFetchTimeout bounds a single underlying profile read.  A slow store
// makes callers proceed without a profile instead of hanging.
const DefaultFetchTimeout = 5 * time.Second

// Loader is the underlying profile read.  repository.ProfileRepo satisfies
// it; tests inject fakes.
type Loader interface {
	GetByUserID(ctx context.Context, userID uint64) (*model.UserProfile, error)
}

// entry is one cached result.  A nil profile is a cached absence: the user
// is known to have no profile row yet.
type entry struct {
	profile  *model.UserProfile
	storedAt time.Time
}

// call is an in-flight load that later callers can wait on.
type call struct {
	done    chan struct{}
	profile *model.UserProfile
	err     error
}

// ProfileCache maps user IDs to their profile (or absence) with a freshness
// window.  Safe for concurrent use.
type ProfileCache struct {
	loader  Loader
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time

	mu       sync.Mutex
	entries  map[uint64]entry
	inflight map[uint64]*call
}

// Option tweaks a ProfileCache at construction.
type Option func(*ProfileCache)

// WithClock injects the time source.  Tests use this to step through the
// freshness window without sleeping.
func WithClock(now func() time.Time) Option {
	return func(c *ProfileCache) { c.now = now }
}

// WithFetchTimeout overrides the per-load timeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *ProfileCache) { c.timeout = d }
}

// NewProfileCache builds an empty cache over the given loader.  A ttl <= 0
// falls back to DefaultTTL.
func NewProfileCache(loader Loader, ttl time.Duration, opts ...Option) *ProfileCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &ProfileCache{
		loader:   loader,
		ttl:      ttl,
		timeout:  DefaultFetchTimeout,
		now:      time.Now,
		entries:  make(map[uint64]entry),
		inflight: make(map[uint64]*call),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the user's profile, or (nil, nil) when the user is known to
// have none.  A fresh cached result is served without touching the store;
// a stale one is bypassed, not proactively evicted.  When another fetch for
// the same user is already running, the caller waits for that result
// instead of issuing a duplicate read.
func (c *ProfileCache) Get(ctx context.Context, userID uint64) (*model.UserProfile, error) {
	c.mu.Lock()
	if e, ok := c.entries[userID]; ok && c.now().Sub(e.storedAt) < c.ttl {
		c.mu.Unlock()
		return e.profile, nil
	}
	if cl, ok := c.inflight[userID]; ok {
		c.mu.Unlock()
		select {
		case <-cl.done:
			return cl.profile, cl.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	cl := &call{done: make(chan struct{})}
	c.inflight[userID] = cl
	c.mu.Unlock()

	cl.profile, cl.err = c.load(ctx, userID)

	c.mu.Lock()
	delete(c.inflight, userID)
	if cl.err == nil {
		c.entries[userID] = entry{profile: cl.profile, storedAt: c.now()}
	}
	c.mu.Unlock()
	close(cl.done)
	return cl.profile, cl.err
}

// load performs the bounded store read.  The timeout is attached to a
// detached context so one caller giving up does not poison the result for
// waiters sharing the in-flight call.
func (c *ProfileCache) load(ctx context.Context, userID uint64) (*model.UserProfile, error) {
	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()
	p, err := c.loader.GetByUserID(loadCtx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			// Cached absence: normal for users who registered but have not
			// gone through shop setup yet.
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// Put re-caches a single entry.  Called after a successful claim or profile
// update so no stale "no profile" result survives a just-completed setup.
func (c *ProfileCache) Put(userID uint64, p *model.UserProfile) {
	c.mu.Lock()
	c.entries[userID] = entry{profile: p, storedAt: c.now()}
	c.mu.Unlock()
}

// Invalidate drops one user's entry.
func (c *ProfileCache) Invalidate(userID uint64) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
}

// Clear wipes the whole cache.  Called on sign-out and on refresh-token
// failure, when the session state is being torn down anyway.
func (c *ProfileCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[uint64]entry)
	c.mu.Unlock()
}
