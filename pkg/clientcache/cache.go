// Package clientcache keeps a client-side view of the user's quota record in
// sync with the server. Commands update the view optimistically and schedule a
// delayed authoritative refetch, so the UI reacts immediately while the
// eventual webhook-driven state still wins.
package clientcache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/essayauditor/pkg/logger"
	"github.com/dmitrymomot/essayauditor/pkg/quota"
)

var ErrNotPrimed = errors.New("client cache has no snapshot yet")

const (
	// DefaultInvalidationDelay leaves the provider enough time to deliver and
	// apply the webhook before the refetch reads the record back.
	DefaultInvalidationDelay = 3 * time.Second

	refreshTimeout = 10 * time.Second
)

// FetchFunc retrieves the authoritative quota record from the server.
type FetchFunc func(ctx context.Context) (quota.Record, error)

// Cache holds the local snapshot. Writes are ordered by a sequence counter:
// a fetch result is applied only if no newer write landed while it was in
// flight, which gives last-write-wins by fetch recency.
type Cache struct {
	fetch FetchFunc
	delay time.Duration
	log   *slog.Logger

	mu         sync.Mutex
	record     quota.Record
	primed     bool
	pending    int
	fetchSeq   uint64
	appliedSeq uint64
}

// Option configures the cache.
type Option func(*Cache)

// WithInvalidationDelay overrides how long a successful command waits before
// triggering the authoritative refetch.
func WithInvalidationDelay(delay time.Duration) Option {
	return func(c *Cache) {
		if delay >= 0 {
			c.delay = delay
		}
	}
}

func WithCacheLogger(log *slog.Logger) Option {
	return func(c *Cache) {
		if log != nil {
			c.log = log
		}
	}
}

func NewCache(fetch FetchFunc, opts ...Option) *Cache {
	if fetch == nil {
		panic("clientcache: fetch function is required")
	}

	c := &Cache{
		fetch: fetch,
		delay: DefaultInvalidationDelay,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns the current local view. The second return reports whether
// a snapshot exists at all.
func (c *Cache) Snapshot() (quota.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record, c.primed
}

// Pending reports whether a command is currently in flight, so the UI can
// mark the snapshot as provisional.
func (c *Cache) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending > 0
}

// Refresh fetches the authoritative record and installs it unless a newer
// write landed while the fetch was in flight. It returns the snapshot that is
// current after the call.
func (c *Cache) Refresh(ctx context.Context) (quota.Record, error) {
	c.mu.Lock()
	c.fetchSeq++
	seq := c.fetchSeq
	c.mu.Unlock()

	record, err := c.fetch(ctx)
	if err != nil {
		return quota.Record{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq > c.appliedSeq {
		c.record = record
		c.primed = true
		c.appliedSeq = seq
	}
	return c.record, nil
}

// RunCommand applies the command optimistically, runs exec against the
// server, and either schedules the authoritative refetch on success or rolls
// the snapshot back to its pre-command state on failure.
func (c *Cache) RunCommand(ctx context.Context, cmd Command, exec func(ctx context.Context) error) error {
	c.mu.Lock()
	if !c.primed {
		c.mu.Unlock()
		return ErrNotPrimed
	}
	prev := c.record
	c.record = cmd.Apply(c.record)
	c.appliedSeq = c.fetchSeq
	c.pending++
	c.mu.Unlock()

	err := exec(ctx)

	c.mu.Lock()
	c.pending--
	if err != nil {
		c.record = prev
		c.appliedSeq = c.fetchSeq
	}
	c.mu.Unlock()

	if err != nil {
		return err
	}

	c.InvalidateAfter(c.delay)
	return nil
}

// InvalidateAfter schedules an authoritative refetch. The result supersedes
// whatever optimistic state is in place by then.
func (c *Cache) InvalidateAfter(delay time.Duration) {
	time.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		if _, err := c.Refresh(ctx); err != nil {
			c.log.Warn("authoritative refetch failed", logger.Error(err))
		}
	})
}
