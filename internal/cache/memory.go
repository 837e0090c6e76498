package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache keeps responses for the life of the process
type MemoryCache struct {
	items *gocache.Cache
}

// NewMemoryCache creates a memory cache whose entries live for ttl;
// a ttl of 0 keeps them until deleted
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		return &MemoryCache{items: gocache.New(gocache.NoExpiration, 0)}
	}
	return &MemoryCache{items: gocache.New(ttl, 2*ttl)}
}

func (c *MemoryCache) Get(key string) (*Response, bool) {
	v, ok := c.items.Get(key)
	if !ok {
		return nil, false
	}
	resp := v.(Response)
	return &resp, true
}

// Put stores a copy, so later changes to resp are not visible to readers
func (c *MemoryCache) Put(key string, resp *Response) error {
	c.items.SetDefault(key, *resp)
	return nil
}

func (c *MemoryCache) Delete(key string) error {
	c.items.Delete(key)
	return nil
}

func (c *MemoryCache) Clear() error {
	c.items.Flush()
	return nil
}

// Len returns the number of entries, including expired ones not yet evicted
func (c *MemoryCache) Len() int {
	return c.items.ItemCount()
}
