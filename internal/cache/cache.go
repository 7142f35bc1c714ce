// Package cache memoizes generated answers by exact question and context.
package cache

import (
	"context"
	"encoding/hex"
	"sync"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"
)

// Key derives the cache key for a question and the context it was asked
// with. Nothing else takes part in the key.
func Key(question, context string) string {
	h := blake3.New()
	h.Write([]byte(question))
	h.Write([]byte{0})
	h.Write([]byte(context))
	return hex.EncodeToString(h.Sum(nil))
}

// ResponseCache is an append-only answer cache. Concurrent Do calls for the
// same key share one underlying call.
type ResponseCache struct {
	mu      sync.RWMutex
	entries map[string]string
	group   singleflight.Group
}

func New() *ResponseCache {
	return &ResponseCache{entries: make(map[string]string)}
}

func (c *ResponseCache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// Put stores v under key. An existing entry is kept.
func (c *ResponseCache) Put(key, v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		c.entries[key] = v
	}
}

func (c *ResponseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Do returns the cached value for key or runs fn once to produce it.
// Failed calls are not cached. hit reports whether fn was skipped.
func (c *ResponseCache) Do(ctx context.Context, key string, fn func(context.Context) (string, error)) (v string, hit bool, err error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}
	// Joiners of an in-flight call never run their own closure.
	called := false
	out, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		called = true
		v, err := fn(ctx)
		if err != nil {
			return "", err
		}
		c.Put(key, v)
		return v, nil
	})
	if err != nil {
		return "", false, err
	}
	return out.(string), !called, nil
}
