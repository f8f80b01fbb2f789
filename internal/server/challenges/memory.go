package challenges

import (
	"context"
	"sync"
	"time"

	"github.com/alprslanymeria/oauthserver/internal/common"
)

type entry struct {
	value   []byte
	expires time.Time
}

// MemoryCache keeps entries in process memory. It is only correct for a
// single server instance.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]entry), now: time.Now}
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweep()
	c.entries[key] = entry{value: append([]byte(nil), value...), expires: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Take(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	delete(c.entries, key)
	if !ok || !c.now().Before(e.expires) {
		return nil, common.ErrorNotFound
	}
	return e.value, nil
}

// sweep drops expired entries. Callers hold mu.
func (c *MemoryCache) sweep() {
	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
}
