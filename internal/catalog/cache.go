package catalog

import "sync"

type cache[V any] struct {
	data sync.Map
}

func (c *cache[V]) get(key string) (V, bool) {
	v, ok := c.data.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

func (c *cache[V]) set(key string, value V) {
	c.data.Store(key, value)
}
