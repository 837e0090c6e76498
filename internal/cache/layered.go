package cache

import "errors"

// LayeredCache puts a fast cache in front of a persistent one.
// Hits in the back layer are copied forward.
type LayeredCache struct {
	front Cache
	back  Cache
}

// NewLayeredCache stacks front over back
func NewLayeredCache(front, back Cache) *LayeredCache {
	return &LayeredCache{front: front, back: back}
}

func (c *LayeredCache) Get(key string) (*Response, bool) {
	if resp, ok := c.front.Get(key); ok {
		return resp, true
	}
	resp, ok := c.back.Get(key)
	if !ok {
		return nil, false
	}
	_ = c.front.Put(key, resp)
	return resp, true
}

// Put writes through both layers; the back layer is authoritative
func (c *LayeredCache) Put(key string, resp *Response) error {
	if err := c.back.Put(key, resp); err != nil {
		return err
	}
	return c.front.Put(key, resp)
}

func (c *LayeredCache) Delete(key string) error {
	return errors.Join(c.front.Delete(key), c.back.Delete(key))
}

func (c *LayeredCache) Clear() error {
	return errors.Join(c.front.Clear(), c.back.Clear())
}
