package adapter

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// FetchCache memoizes upstream response bodies by request URL for the
// lifetime of one ingestion run. Concurrent requests for the same URL share
// a single upstream call. Failures are not cached.
type FetchCache struct {
	mu     sync.RWMutex
	bodies map[string][]byte
	group  singleflight.Group
}

// NewFetchCache creates an empty cache
func NewFetchCache() *FetchCache {
	return &FetchCache{bodies: make(map[string][]byte)}
}

// Do returns the cached body for key or runs fetch to fill it
func (c *FetchCache) Do(key string, fetch func() ([]byte, error)) ([]byte, error) {
	c.mu.RLock()
	body, ok := c.bodies[key]
	c.mu.RUnlock()
	if ok {
		return body, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		body, err := fetch()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.bodies[key] = body
		c.mu.Unlock()
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Len returns the number of cached bodies
func (c *FetchCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.bodies)
}
