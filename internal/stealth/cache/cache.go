// Package cache resolves stealth addresses to their owners without a
// database round trip. It is a bounded, TTL-limited LRU owned by whoever
// constructs it; there is no package-level instance.
package cache

import (
	"container/list"
	"sync"
	"time"

	id "discard/pkg/domain"
)

// Entry is a cached resolution. Known=false records that the address does
// not exist, so repeated probes for unknown addresses stay off the database.
type Entry struct {
	Owner id.UserID
	Known bool
}

type item struct {
	key       string
	entry     Entry
	expiresAt time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	mu    sync.Mutex
	ttl   time.Duration
	size  int
	order *list.List
	items map[string]*list.Element
	now   func() time.Time
}

// New returns a cache holding at most size entries for ttl each.
func New(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = 1
	}
	return &Cache{
		ttl:   ttl,
		size:  size,
		order: list.New(),
		items: make(map[string]*list.Element, size),
		now:   time.Now,
	}
}

// Get returns a live entry for address.
func (c *Cache) Get(address string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[address]
	if !ok {
		return Entry{}, false
	}
	it := el.Value.(*item)
	if !c.now().Before(it.expiresAt) {
		c.removeElement(el)
		return Entry{}, false
	}
	c.order.MoveToFront(el)
	return it.entry, true
}

// Put stores or replaces the entry for address, evicting the least recently
// used entry when full.
func (c *Cache) Put(address string, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	expiresAt := c.now().Add(c.ttl)
	if el, ok := c.items[address]; ok {
		it := el.Value.(*item)
		it.entry = entry
		it.expiresAt = expiresAt
		c.order.MoveToFront(el)
		return
	}
	c.items[address] = c.order.PushFront(&item{key: address, entry: entry, expiresAt: expiresAt})
	for c.order.Len() > c.size {
		c.removeElement(c.order.Back())
	}
}

func (c *Cache) Delete(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[address]; ok {
		c.removeElement(el)
	}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[string]*list.Element, c.size)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*item).key)
}
