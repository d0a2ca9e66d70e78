// Package handles keeps one materialized handle per (logical database,
// partition) pair for the life of the process.
package handles

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"voterstore/internal/partition/metrics"
	"voterstore/internal/partition/store"
)

// Opener materializes a partition handle. store.Store satisfies it.
type Opener interface {
	OpenPartition(ctx context.Context, database, name string) (store.Partition, error)
}

type key struct {
	database string
	name     string
}

// Cache is the process-wide partition handle registry. Concurrent first
// accesses to the same pair share a single open; failed opens are not cached
// so the next call retries.
type Cache struct {
	opener  Opener
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	handles map[key]store.Partition
	group   singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for open failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithMetrics enables handle cache metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// New creates an empty handle cache.
func New(opener Opener, opts ...Option) *Cache {
	c := &Cache{
		opener:  opener,
		logger:  slog.Default(),
		handles: make(map[key]store.Partition),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandleFor returns the handle for name in database, opening it on first use.
// Returns sentinel.ErrNotFound (wrapped by the store) when the partition is
// missing.
func (c *Cache) HandleFor(ctx context.Context, database, name string) (store.Partition, error) {
	k := key{database: database, name: name}
	if h, ok := c.lookup(k); ok {
		return h, nil
	}

	// Names never contain NUL, so the flight key is unambiguous.
	v, err, _ := c.group.Do(database+"\x00"+name, func() (any, error) {
		if h, ok := c.lookup(k); ok {
			return h, nil
		}
		// The open is shared by every waiter, so one caller's cancellation
		// must not fail the others.
		h, err := c.opener.OpenPartition(context.WithoutCancel(ctx), database, name)
		if c.metrics != nil {
			c.metrics.IncrementHandleOpen(err == nil)
		}
		if err != nil {
			c.logger.WarnContext(ctx, "failed to open partition",
				"database", database,
				"partition", name,
				"error", err,
			)
			return nil, err
		}
		c.mu.Lock()
		c.handles[k] = h
		size := len(c.handles)
		c.mu.Unlock()
		c.observeSize(size)
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(store.Partition), nil
}

// Forget evicts the handle for one pair. Called after a partition is dropped.
func (c *Cache) Forget(database, name string) {
	c.mu.Lock()
	delete(c.handles, key{database: database, name: name})
	size := len(c.handles)
	c.mu.Unlock()
	c.observeSize(size)
}

// Size returns the number of cached handles.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handles)
}

// Clear evicts every handle.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.handles = make(map[key]store.Partition)
	c.mu.Unlock()
	c.observeSize(0)
}

func (c *Cache) lookup(k key) (store.Partition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handles[k]
	return h, ok
}

func (c *Cache) observeSize(n int) {
	if c.metrics != nil {
		c.metrics.SetHandleCacheSize(n)
	}
}
