package cache

import (
	"sync"
	"time"
)

// Cache is a TTL cache for non-authoritative read views.
// Contract: writers invalidate the touched key; bulk mutations call Clear.
// It must never back an invariant-checking read.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, v any)
	Invalidate(key string)
	Clear()
}

type ttlCache struct {
	mu   sync.Mutex
	ttl  time.Duration
	data map[string]entry
}

type entry struct {
	v         any
	expiresAt time.Time
}

func New(ttl time.Duration) Cache {
	return &ttlCache{
		ttl:  ttl,
		data: make(map[string]entry),
	}
}

func (c *ttlCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.data[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.data, key)
		return nil, false
	}
	return e.v, true
}

func (c *ttlCache) Set(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = entry{v: v, expiresAt: time.Now().Add(c.ttl)}
}

func (c *ttlCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

func (c *ttlCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]entry)
}
