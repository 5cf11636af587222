package db

import (
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto"
)

// CacheGroup names a family of cache keys that can be cleared together.
type CacheGroup string

const (
	OrgConfigGroup CacheGroup = "org_config"
	CategoryGroup  CacheGroup = "categories"
)

// Cache wraps ristretto and remembers which keys belong to which group so a
// whole group can be dropped at once.
type Cache struct {
	c *ristretto.Cache

	mu     sync.Mutex
	groups map[CacheGroup]map[string]struct{}
}

func NewCache() (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10000, // number of keys to track frequency of
		MaxCost:     10000,
		BufferItems: 64, // number of keys per Get buffer
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	return &Cache{c: c, groups: make(map[CacheGroup]map[string]struct{})}, nil
}

func OrgKey(group CacheGroup, orgID int64) string {
	return fmt.Sprintf("%s:%d", group, orgID)
}

func (c *Cache) Get(key string) (interface{}, bool) {
	if c == nil {
		return nil, false
	}
	return c.c.Get(key)
}

func (c *Cache) Set(group CacheGroup, key string, value interface{}) {
	if c == nil {
		return
	}
	c.mu.Lock()
	keys, ok := c.groups[group]
	if !ok {
		keys = make(map[string]struct{})
		c.groups[group] = keys
	}
	keys[key] = struct{}{}
	c.mu.Unlock()
	c.c.Set(key, value, 1)
	// make the value visible to the next Get
	c.c.Wait()
}

func (c *Cache) Del(group CacheGroup, key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.groups[group], key)
	c.mu.Unlock()
	c.c.Del(key)
}

func (c *Cache) ClearGroup(group CacheGroup) {
	if c == nil {
		return
	}
	c.mu.Lock()
	for key := range c.groups[group] {
		c.c.Del(key)
	}
	delete(c.groups, group)
	c.mu.Unlock()
}

func (c *Cache) Close() {
	if c != nil {
		c.c.Close()
	}
}
