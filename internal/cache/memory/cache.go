package memory

import (
	"context"
	"sync"
	"time"

	"github.com/kitbuilder587/translation-pipeline/internal/cache"
)

type item struct {
	value     any
	expiresAt time.Time
}

type Config struct {
	// CleanupInterval - как часто вычищать просроченные записи, по умолчанию 5 минут
	CleanupInterval time.Duration
	// MaxEntries - 0 без ограничения; при переполнении выбрасывается запись, которая истекает раньше всех
	MaxEntries int
}

// Cache - простой in-memory кеш с TTL
type Cache struct {
	mu       sync.RWMutex
	items    map[string]item
	max      int
	now      func() time.Time
	stopChan chan struct{}
	stopped  bool
}

var _ cache.Cache = (*Cache)(nil)

func New() *Cache {
	return NewWithContext(context.Background(), Config{})
}

func NewWithContext(ctx context.Context, cfg Config) *Cache {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	c := &Cache{
		items:    make(map[string]item),
		max:      cfg.MaxEntries,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	go c.cleanup(ctx, cfg.CleanupInterval)
	return c
}

func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, ok := c.items[key]
	if !ok || c.now().After(it.expiresAt) {
		return nil, false
	}
	return it.value, true
}

func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && c.max > 0 && len(c.items) >= c.max {
		c.evictLocked()
	}
	c.items[key] = item{value: value, expiresAt: c.now().Add(ttl)}
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache) Stop() {
	c.mu.Lock()
	if !c.stopped {
		c.stopped = true
		close(c.stopChan)
	}
	c.mu.Unlock()
}

func (c *Cache) cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *Cache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, it := range c.items {
		if now.After(it.expiresAt) {
			delete(c.items, k)
		}
	}
}

// evictLocked - сначала просроченные, иначе та, что истекает раньше
func (c *Cache) evictLocked() {
	now := c.now()
	var victim string
	var earliest time.Time
	for k, it := range c.items {
		if now.After(it.expiresAt) {
			delete(c.items, k)
			return
		}
		if victim == "" || it.expiresAt.Before(earliest) {
			victim, earliest = k, it.expiresAt
		}
	}
	if victim != "" {
		delete(c.items, victim)
	}
}
