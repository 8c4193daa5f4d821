package compiler

import (
	"github.com/gogpu/compute/internal/cache"
)

// DefaultCacheSize is the number of kernels a Cached compiler keeps when
// NewCached is given a non-positive size.
const DefaultCacheSize = 64

// Backend compiles source to bytecode. [Naga] implements it.
type Backend interface {
	Compile(source, entryPoint string) ([]byte, error)
}

type cacheKey struct {
	source, entryPoint string
}

// Cached memoizes the bytecode of successful compilations, keyed by
// source text and entry point. Failures are not cached.
type Cached struct {
	next    Backend
	entries *cache.Cache[cacheKey, []byte]
}

// NewCached wraps next with an LRU cache of size entries.
func NewCached(next Backend, size int) *Cached {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Cached{next: next, entries: cache.New[cacheKey, []byte](size)}
}

// Compile returns cached bytecode for source, compiling it on a miss.
// The returned slice is a copy.
func (c *Cached) Compile(source, entryPoint string) ([]byte, error) {
	key := cacheKey{source, entryPoint}
	if code, ok := c.entries.Get(key); ok {
		return append([]byte(nil), code...), nil
	}
	code, err := c.next.Compile(source, entryPoint)
	if err != nil {
		return nil, err
	}
	c.entries.Set(key, append([]byte(nil), code...))
	return code, nil
}

// CacheStats holds the counters of a Cached compiler.
type CacheStats = cache.Stats

// Stats reports cache hits, misses and evictions.
func (c *Cached) Stats() CacheStats { return c.entries.Stats() }
