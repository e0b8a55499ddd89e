package feed

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"coursecal/internal/metrics"
)

// ErrCacheClosed is returned by Get after Close.
var ErrCacheClosed = errors.New("blob cache closed")

// LoadFunc produces the bytes for a key on a cache miss.
type LoadFunc func(ctx context.Context, key string) ([]byte, error)

// BlobCache keeps fetched binary files (calendar and timetable PDFs) in
// memory. Concurrent misses on one key share a single load, which is not
// cancelled when the caller that started it goes away. The owner must call
// Close when done; Close releases every entry.
type BlobCache struct {
	load    LoadFunc
	metrics *metrics.Metrics
	group   singleflight.Group

	mu      sync.Mutex
	entries map[string][]byte
	gen     uint64
	closed  bool
}

// NewBlobCache returns an empty cache backed by load.
func NewBlobCache(load LoadFunc, m *metrics.Metrics) *BlobCache {
	return &BlobCache{
		load:    load,
		metrics: m,
		entries: make(map[string][]byte),
	}
}

// NewFetcherBlobCache loads cache misses through f.
func NewFetcherBlobCache(f *Fetcher, m *metrics.Metrics) *BlobCache {
	return NewBlobCache(func(ctx context.Context, key string) ([]byte, error) {
		res, err := f.Fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		return res.Body, nil
	}, m)
}

// Get returns the cached bytes for key, loading them on a miss. Failed
// loads are not cached. Get returns early with ctx.Err() if ctx ends while
// waiting; the shared load keeps running for other callers.
func (c *BlobCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrCacheClosed
	}
	if body, ok := c.entries[key]; ok {
		n := len(c.entries)
		c.mu.Unlock()
		c.metrics.ObserveCache(true, n)
		return body, nil
	}
	gen := c.gen
	c.mu.Unlock()

	// Loads started before InvalidateAll are not joined afterwards.
	flight := strconv.FormatUint(gen, 10) + "/" + key
	loadCtx := context.WithoutCancel(ctx)

	ch := c.group.DoChan(flight, func() (any, error) {
		body, err := c.load(loadCtx, key)

		c.mu.Lock()
		if err == nil && !c.closed && gen == c.gen {
			c.entries[key] = body
		}
		n := len(c.entries)
		c.mu.Unlock()

		c.metrics.ObserveCache(false, n)
		return body, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		body, _ := res.Val.([]byte)
		return body, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports the number of cached entries.
func (c *BlobCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// InvalidateAll drops every cached entry. Loads already in flight return
// their result to waiting callers but are not stored, and later misses
// start a fresh load.
func (c *BlobCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.entries = make(map[string][]byte)
	c.gen++
}

// Close releases all entries; later Gets fail with ErrCacheClosed.
func (c *BlobCache) Close() {
	c.mu.Lock()
	c.closed = true
	c.entries = nil
	c.mu.Unlock()
}
