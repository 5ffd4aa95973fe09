package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	sharedCache "github.com/davicafu/doorbell/shared/platform/cache"
)

type cacheItem struct {
	value     []byte // bytes JSON, igual que Redis
	expiresAt time.Time
}

// InMemoryEventCache es la caché de respaldo cuando no hay Redis configurado.
// Con maxBytes > 0 limita el total de bytes JSON guardados: al llenarse rechaza
// escrituras en lugar de crecer sin límite.
type InMemoryEventCache struct {
	store      map[string]cacheItem
	mu         sync.RWMutex
	defaultTTL time.Duration
	maxBytes   int
	usedBytes  int
	now        func() time.Time
	stopChan   chan struct{}
	stopOnce   sync.Once
}

var _ sharedCache.Cache = (*InMemoryEventCache)(nil)

// NewInMemoryEventCache arranca la goroutine de limpieza; hay que llamar a Stop al apagar.
func NewInMemoryEventCache(defaultTTL, cleanupInterval time.Duration, maxBytes int) *InMemoryEventCache {
	c := newInMemoryEventCache(defaultTTL, maxBytes, time.Now)
	go c.cleanupLoop(cleanupInterval)
	return c
}

func newInMemoryEventCache(defaultTTL time.Duration, maxBytes int, now func() time.Time) *InMemoryEventCache {
	return &InMemoryEventCache{
		store:      make(map[string]cacheItem),
		defaultTTL: defaultTTL,
		maxBytes:   maxBytes,
		now:        now,
		stopChan:   make(chan struct{}),
	}
}

func (c *InMemoryEventCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.store[key]
	if !ok || c.now().After(item.expiresAt) {
		return false, nil
	}
	if err := json.Unmarshal(item.value, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *InMemoryEventCache) Set(ctx context.Context, key string, val interface{}, ttlSecs int) error {
	data, err := json.Marshal(val)
	if err != nil {
		return err
	}

	ttl := c.defaultTTL
	if ttlSecs > 0 {
		ttl = time.Duration(ttlSecs) * time.Second
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxBytes > 0 {
		if len(data) > c.maxBytes {
			return nil // nunca cabría: se comporta como un miss futuro
		}
		if c.usedBytes-len(c.store[key].value)+len(data) > c.maxBytes {
			c.evictExpiredLocked()
			if c.usedBytes-len(c.store[key].value)+len(data) > c.maxBytes {
				return nil
			}
		}
	}
	c.deleteLocked(key)
	c.store[key] = cacheItem{value: data, expiresAt: c.now().Add(ttl)}
	c.usedBytes += len(data)
	return nil
}

func (c *InMemoryEventCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteLocked(key)
	return nil
}

// Bytes devuelve el tamaño JSON total guardado, expirados incluidos.
func (c *InMemoryEventCache) Bytes() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.usedBytes
}

// Len incluye claves expiradas todavía no limpiadas.
func (c *InMemoryEventCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

func (c *InMemoryEventCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

func (c *InMemoryEventCache) deleteLocked(key string) {
	if item, ok := c.store[key]; ok {
		c.usedBytes -= len(item.value)
		delete(c.store, key)
	}
}

func (c *InMemoryEventCache) evictExpiredLocked() {
	now := c.now()
	for key, item := range c.store {
		if now.After(item.expiresAt) {
			c.deleteLocked(key)
		}
	}
}

func (c *InMemoryEventCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.evictExpiredLocked()
			c.mu.Unlock()
		case <-c.stopChan:
			return
		}
	}
}
