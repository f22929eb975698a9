package resource

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/zeusync/jackal/internal/core/vfs"
)

const DefaultShardCount = 16

// LoadFunc produces the payload for one key. The context carries the values
// of the caller that started the load but is never cancelled.
type LoadFunc func(ctx context.Context) (any, error)

// Info describes one cache entry.
type Info struct {
	Key      string `json:"key"`
	Kind     Kind   `json:"kind"`
	Physical string `json:"physical"`
	State    string `json:"state"`
	Refs     int64  `json:"refs"`
	Version  uint64 `json:"version"`
}

// CacheStats are cumulative counters since the cache was created.
type CacheStats struct {
	Entries   int    `json:"entries"`
	Loads     uint64 `json:"loads"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Failures  uint64 `json:"failures"`
	Evictions uint64 `json:"evictions"`
	Reloads   uint64 `json:"reloads"`
}

type cacheCounters struct {
	loads, hits, misses, failures, evictions, reloads atomic.Uint64
}

// CacheHooks observe cache transitions. Unload frees a payload that no
// handle refers to any more; it runs outside every cache lock.
type CacheHooks struct {
	Loaded   func(h *Handle)
	Failed   func(key Key, err error)
	Evicted  func(h *Handle)
	Reloaded func(h *Handle)
	Unload   func(key Key, payload any)
}

// Cache maps keys to handles and guarantees at most one in-flight load per
// key. Entries live exactly as long as they are referenced: the last Release
// evicts and unloads. Keys are spread over shards by xxhash so loads of
// different keys never contend on a lock.
type Cache struct {
	shards []cacheShard
	mask   uint64
	hooks  CacheHooks
	stats  cacheCounters
}

type cacheShard struct {
	mu      sync.Mutex
	entries map[Key]*Handle
	flight  singleflight.Group
}

func NewCache(shardCount int, hooks CacheHooks) *Cache {
	if shardCount <= 0 {
		shardCount = DefaultShardCount
	}
	if shardCount&(shardCount-1) != 0 {
		shardCount = nextPowerOf2(shardCount)
	}
	c := &Cache{
		shards: make([]cacheShard, shardCount),
		mask:   uint64(shardCount - 1),
		hooks:  hooks,
	}
	for i := range c.shards {
		c.shards[i].entries = make(map[Key]*Handle)
	}
	return c
}

func nextPowerOf2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (c *Cache) shardFor(key Key) *cacheShard {
	return &c.shards[key.hash()&c.mask]
}

// Acquire returns the handle for key with one more reference, loading it
// through load on a miss. Concurrent callers for the same key share a single
// load and all observe its outcome: the same handle, or the same *LoadError.
//
// A cancelled ctx makes the caller give up its interest; the load itself
// keeps running and its result is evicted if nobody else wants it.
func (c *Cache) Acquire(ctx context.Context, key Key, loc vfs.Location, load LoadFunc) (*Handle, error) {
	sh := c.shardFor(key)

	sh.mu.Lock()
	h, ok := sh.entries[key]
	if ok {
		c.stats.hits.Add(1)
	} else {
		h = newHandle(key, loc)
		sh.entries[key] = h
		c.stats.misses.Add(1)
	}
	h.refs.Add(1)
	sh.mu.Unlock()

	// A flight may finish an older placeholder for the same key, so keep
	// joining until ours leaves Loading.
	for h.State() == Loading {
		ch := sh.flight.DoChan(key.String(), func() (any, error) {
			c.fill(ctx, sh, key, load)
			return nil, nil
		})
		select {
		case <-ch:
		case <-ctx.Done():
			c.abandon(sh, h)
			return nil, ctx.Err()
		}
	}

	switch h.State() {
	case Ready:
		return h, nil
	case Failed:
		h.refs.Add(-1)
		return nil, h.Err()
	default:
		return nil, fmt.Errorf("%w: %s", ErrHandleReleased, key)
	}
}

// fill runs inside the key's flight and completes whichever placeholder is
// currently cached for key.
func (c *Cache) fill(ctx context.Context, sh *cacheShard, key Key, load LoadFunc) {
	sh.mu.Lock()
	h, ok := sh.entries[key]
	sh.mu.Unlock()
	if !ok || h.State() != Loading {
		return
	}

	c.stats.loads.Add(1)
	payload, err := safeLoad(context.WithoutCancel(ctx), load)

	sh.mu.Lock()
	if err != nil {
		lerr := &LoadError{Key: key, Cause: err}
		h.fail(lerr)
		if sh.entries[key] == h {
			delete(sh.entries, key)
		}
		sh.mu.Unlock()

		c.stats.failures.Add(1)
		if c.hooks.Failed != nil {
			c.hooks.Failed(key, lerr)
		}
		return
	}

	h.ready(payload)
	orphaned := h.refs.Load() == 0 || sh.entries[key] != h
	if orphaned {
		if sh.entries[key] == h {
			delete(sh.entries, key)
		}
		h.unload()
	}
	sh.mu.Unlock()

	if c.hooks.Loaded != nil {
		c.hooks.Loaded(h)
	}
	if orphaned {
		c.evicted(h, payload)
	}
}

func safeLoad(ctx context.Context, load LoadFunc) (payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loader panic: %v", r)
		}
	}()
	return load(ctx)
}

func (c *Cache) abandon(sh *cacheShard, h *Handle) {
	sh.mu.Lock()
	n := h.refs.Add(-1)
	var (
		payload any
		evict   bool
	)
	if n == 0 && h.State() == Ready && sh.entries[h.key] == h {
		delete(sh.entries, h.key)
		payload = h.unload()
		evict = true
	}
	sh.mu.Unlock()

	if evict {
		c.evicted(h, payload)
	}
}

// Release drops one reference. The last reference evicts the entry and
// unloads its payload; a handle already at zero yields ErrRefCountUnderflow.
// Handles dropped by Purge yield ErrHandleReleased.
func (c *Cache) Release(h *Handle) error {
	if h == nil {
		return fmt.Errorf("%w: nil handle", ErrHandleReleased)
	}
	if h.purged.Load() {
		return fmt.Errorf("%w: %s", ErrHandleReleased, h.key)
	}
	sh := c.shardFor(h.key)

	sh.mu.Lock()
	if h.refs.Load() <= 0 {
		sh.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRefCountUnderflow, h.key)
	}
	if h.refs.Add(-1) > 0 {
		sh.mu.Unlock()
		return nil
	}
	var (
		payload any
		evict   bool
	)
	if sh.entries[h.key] == h {
		delete(sh.entries, h.key)
		evict = true
	}
	if h.State() == Ready {
		payload = h.unload()
	}
	sh.mu.Unlock()

	if evict {
		c.evicted(h, payload)
	}
	return nil
}

func (c *Cache) evicted(h *Handle, payload any) {
	c.stats.evictions.Add(1)
	if c.hooks.Unload != nil && payload != nil {
		c.hooks.Unload(h.key, payload)
	}
	if c.hooks.Evicted != nil {
		c.hooks.Evicted(h)
	}
}

// Reload loads key again and swaps the new payload into the live handle,
// keeping every holder's reference valid. It reports false when key is not
// cached in the Ready state. On failure the previous payload stays in place.
func (c *Cache) Reload(ctx context.Context, key Key, load LoadFunc) (bool, error) {
	sh := c.shardFor(key)
	sh.mu.Lock()
	h, ok := sh.entries[key]
	sh.mu.Unlock()
	if !ok || h.State() != Ready {
		return false, nil
	}

	swapped, err, _ := sh.flight.Do("reload:"+key.String(), func() (any, error) {
		payload, err := safeLoad(context.WithoutCancel(ctx), load)
		if err != nil {
			return false, &LoadError{Key: key, Cause: err}
		}
		old, ok := h.swap(payload)
		if !ok {
			// evicted while loading
			if c.hooks.Unload != nil && payload != nil {
				c.hooks.Unload(key, payload)
			}
			return false, nil
		}
		c.stats.reloads.Add(1)
		if c.hooks.Unload != nil && old != nil {
			c.hooks.Unload(key, old)
		}
		if c.hooks.Reloaded != nil {
			c.hooks.Reloaded(h)
		}
		return true, nil
	})
	if err != nil {
		c.stats.failures.Add(1)
		if c.hooks.Failed != nil {
			c.hooks.Failed(key, err)
		}
		return false, err
	}
	return swapped.(bool), nil
}

// Lookup returns the cached handle for key without taking a reference.
func (c *Cache) Lookup(key Key) (*Handle, bool) {
	sh := c.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	h, ok := sh.entries[key]
	return h, ok
}

// KeysFor lists the cached keys whose bytes live at physical.
func (c *Cache) KeysFor(physical string) []Key {
	var keys []Key
	c.each(func(h *Handle) {
		if h.key.Physical == physical {
			keys = append(keys, h.key)
		}
	})
	slices.SortFunc(keys, func(a, b Key) int { return strings.Compare(a.String(), b.String()) })
	return keys
}

func (c *Cache) Len() int {
	n := 0
	for i := range c.shards {
		sh := &c.shards[i]
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

// Snapshot lists every entry ordered by key.
func (c *Cache) Snapshot() []Info {
	out := make([]Info, 0)
	c.each(func(h *Handle) {
		out = append(out, Info{
			Key:      h.key.String(),
			Kind:     h.key.Kind,
			Physical: h.key.Physical,
			State:    h.State().String(),
			Refs:     h.Refs(),
			Version:  h.Version(),
		})
	})
	slices.SortFunc(out, func(a, b Info) int { return strings.Compare(a.Key, b.Key) })
	return out
}

func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Entries:   c.Len(),
		Loads:     c.stats.loads.Load(),
		Hits:      c.stats.hits.Load(),
		Misses:    c.stats.misses.Load(),
		Failures:  c.stats.failures.Load(),
		Evictions: c.stats.evictions.Load(),
		Reloads:   c.stats.reloads.Load(),
	}
}

// Purge evicts every entry regardless of its references and unloads the
// ready payloads. Outstanding handles report ErrHandleReleased afterwards.
func (c *Cache) Purge() int {
	var purged []*Handle
	var payloads []any
	for i := range c.shards {
		sh := &c.shards[i]
		sh.mu.Lock()
		for key, h := range sh.entries {
			delete(sh.entries, key)
			h.purged.Store(true)
			h.refs.Store(0)
			purged = append(purged, h)
			payloads = append(payloads, h.unload())
		}
		sh.mu.Unlock()
	}
	for i, h := range purged {
		c.evicted(h, payloads[i])
	}
	return len(purged)
}

func (c *Cache) each(fn func(h *Handle)) {
	for i := range c.shards {
		sh := &c.shards[i]
		sh.mu.Lock()
		for _, h := range sh.entries {
			fn(h)
		}
		sh.mu.Unlock()
	}
}
