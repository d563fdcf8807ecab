/*
 * Copyright 2025 The Luckliy Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package cache provides the bounded caches shared across calls.
// Package cache 有界缓存
package cache

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity is the capacity used when none is given.
const DefaultCapacity = 256

// Stats are the counters of a cache.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// LRU is a thread-safe cache holding at most Capacity entries. Inserting into a
// full cache evicts the least recently used entry. Get touches the entry.
type LRU[K comparable, V any] struct {
	inner     *lru.Cache[K, V]
	capacity  int
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	// loading serializes loads of the same key
	loading sync.Map
}

// NewLRU creates a cache of the given capacity. capacity <= 0 uses DefaultCapacity.
func NewLRU[K comparable, V any](capacity int) *LRU[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &LRU[K, V]{capacity: capacity}
	inner, err := lru.NewWithEvict[K, V](capacity, func(K, V) {
		c.evictions.Add(1)
	})
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	c.inner = inner
	return c
}

// Get returns the value and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	v, ok := c.inner.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Add inserts or replaces a value. Returns true if an entry was evicted.
func (c *LRU[K, V]) Add(key K, value V) bool {
	return c.inner.Add(key, value)
}

// GetOrLoad returns the cached value or stores the result of load.
// Concurrent loads of the same key run load once.
func (c *LRU[K, V]) GetOrLoad(key K, load func(K) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	muAny, _ := c.loading.LoadOrStore(key, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	defer func() {
		mu.Unlock()
		c.loading.Delete(key)
	}()
	if v, ok := c.inner.Peek(key); ok {
		return v, nil
	}
	v, err := load(key)
	if err != nil {
		var zero V
		return zero, err
	}
	c.inner.Add(key, v)
	return v, nil
}

// Contains reports whether key is cached, without touching it.
func (c *LRU[K, V]) Contains(key K) bool {
	return c.inner.Contains(key)
}

// Keys returns the keys from oldest to newest.
func (c *LRU[K, V]) Keys() []K {
	return c.inner.Keys()
}

// Len returns the number of cached entries.
func (c *LRU[K, V]) Len() int {
	return c.inner.Len()
}

// Capacity returns the maximum number of entries.
func (c *LRU[K, V]) Capacity() int {
	return c.capacity
}

// Stats returns a snapshot of the counters.
func (c *LRU[K, V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
