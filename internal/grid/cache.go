package grid

import (
	"sync"

	"github.com/couchcryptid/weather-grid-sync/internal/domain"
)

// centroidCache is a thread-safe LRU of cell centroids. Recomputing a
// representative for boundary pixels clips the zone outline, so hot cells are
// worth keeping.
type centroidCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[int64]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   int64
	value domain.Centroid
	prev  *entry
	next  *entry
}

func newCentroidCache(maxEntries int) *centroidCache {
	return &centroidCache{
		maxEntries: maxEntries,
		entries:    make(map[int64]*entry),
	}
}

func (c *centroidCache) get(key int64) (domain.Centroid, bool) {
	if c.maxEntries <= 0 {
		return domain.Centroid{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.Centroid{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *centroidCache) put(key int64, value domain.Centroid) {
	if c.maxEntries <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *centroidCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *centroidCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *centroidCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *centroidCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *centroidCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
