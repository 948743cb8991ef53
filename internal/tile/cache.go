package tile

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/jellydator/ttlcache/v3"
	log "github.com/sirupsen/logrus"
)

// DefaultCacheSize matches the layer default of the web client.
const DefaultCacheSize = 500

// Cache is a bounded key→tile map evicting in insertion order. Reads never refresh an entry,
// so a tile requested every frame is still evicted once it becomes the oldest insert.
//
// ttlcache moves an entry to the front of its list on every Get, so reads are served from
// index and items is only written. Both then hold the same insertion order and the entry
// items evicts for capacity is the front of order.
type Cache[C any] struct {
	items    *ttlcache.Cache[string, *Tile[C]]
	capacity int

	mu    sync.Mutex
	order *list.List
	index map[string]*list.Element

	hookMu sync.RWMutex
	hooks  []func(*Tile[C])
}

type entry[C any] struct {
	key  string
	tile *Tile[C]
}

// NewCache creates a cache holding at most capacity tiles.
func NewCache[C any](capacity int) (*Cache[C], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("tile cache capacity must be positive, got %d", capacity)
	}
	c := &Cache[C]{
		items: ttlcache.New(
			ttlcache.WithCapacity[string, *Tile[C]](uint64(capacity)),
			ttlcache.WithDisableTouchOnHit[string, *Tile[C]](),
		),
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element, capacity),
	}
	c.items.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *Tile[C]]) {
		if reason != ttlcache.EvictionReasonCapacityReached {
			return
		}
		t := item.Value()
		log.WithField("tile", t.Num.String()).Debug("tile evicted")
		c.evicted(t)
	})
	return c, nil
}

// OnEvict registers fn to run for every tile pushed out by capacity or removed by Delete.
func (c *Cache[C]) OnEvict(fn func(*Tile[C])) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.hooks = append(c.hooks, fn)
}

func (c *Cache[C]) evicted(t *Tile[C]) {
	c.hookMu.RLock()
	hooks := c.hooks
	c.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(t)
	}
}

func (c *Cache[C]) Capacity() int {
	return c.capacity
}

func (c *Cache[C]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Get returns the tile stored under the key of num.
func (c *Cache[C]) Get(num Num) (*Tile[C], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[num.Key()]
	if !ok {
		return nil, false
	}
	return el.Value.(*entry[C]).tile, true
}

// Set inserts t under the key of num. When the cache is full the oldest insert is evicted
// first; the entry being inserted is never the victim. Setting an existing key re-inserts it
// as the youngest entry.
func (c *Cache[C]) Set(num Num, t *Tile[C]) {
	key := num.Key()
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.order.Remove(el)
		delete(c.index, key)
		// removal with EvictionReasonDeleted is ignored by the eviction hook
		c.items.Delete(key)
	} else if c.order.Len() >= c.capacity {
		// items drops the same entry with EvictionReasonCapacityReached below
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(*entry[C]).key)
	}
	c.index[key] = c.order.PushBack(&entry[C]{key: key, tile: t})
	c.items.Set(key, t, ttlcache.NoTTL)
}

// Delete removes the tile stored under num and reports whether one was present.
func (c *Cache[C]) Delete(num Num) bool {
	key := num.Key()
	c.mu.Lock()
	el, ok := c.index[key]
	if ok {
		c.order.Remove(el)
		delete(c.index, key)
		c.items.Delete(key)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	c.evicted(el.Value.(*entry[C]).tile)
	return true
}
