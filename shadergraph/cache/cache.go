// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package cache implements the fingerprint-keyed, single-flight
// artifact cache the patch-collection compiler sits on top of:
// concurrent requests for the same fingerprint share one computation,
// and a cache hit returns the shared artifact without recomputing it.
// It is generic over the cached artifact type so that it carries no
// dependency on the shadergraph package itself.
package cache

import (
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache is a concurrent map keyed by a 64-bit fingerprint, backed by
// a singleflight.Group so that a miss computed by one caller is
// shared by every other concurrent caller requesting the same key.
type Cache[T any] struct {
	mu      sync.RWMutex
	entries map[uint64]T
	group   singleflight.Group
}

// New creates an empty cache.
func New[T any]() *Cache[T] {
	return &Cache[T]{entries: make(map[uint64]T)}
}

// Get returns the cached value for key, if present.
func (c *Cache[T]) Get(key uint64) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// GetOrCompute returns the cached value for key, computing it via
// compute on a miss. Concurrent calls for the same key share one
// compute invocation.
func (c *Cache[T]) GetOrCompute(key uint64, compute func() (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(strconv.FormatUint(key, 16), func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		val, err := compute()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = val
		c.mu.Unlock()
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Invalidate evicts key, forcing the next GetOrCompute to recompute.
func (c *Cache[T]) Invalidate(key uint64) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len reports the number of cached entries.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
