// Package cache provides a generic, thread-safe LRU cache.
//
// The compiler uses it to keep the bytecode of recently compiled kernel
// sources:
//
//	c := cache.New[string, []byte](64)
//	c.Set(src, code)
//	code, ok := c.Get(src)
package cache
