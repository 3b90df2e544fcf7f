package collection

import (
	"container/list"
	"sync"

	"frozenkv/internal/segment"
)

// lruCache bounds how many segments stay mmap'd when a Store is asked to
// read from one it hasn't pre-opened, keyed by segment index and backed by
// container/list for O(1) touch/evict.
type lruCache struct {
	mu       sync.Mutex
	capacity int
	loader   func(int32) (*segment.Segment, error)
	items    map[int32]*list.Element
	order    *list.List // front = most recently used
}

type cacheEntry struct {
	fileIndex int32
	seg       *segment.Segment
}

func newLRUCache(capacity int, loader func(int32) (*segment.Segment, error)) *lruCache {
	return &lruCache{
		capacity: capacity,
		loader:   loader,
		items:    make(map[int32]*list.Element),
		order:    list.New(),
	}
}

// Get returns the mmap'd segment for fileIndex, loading and caching it on
// a miss, and evicting the least-recently-used entry if the cache is at
// capacity. capacity <= 0 means unbounded.
func (c *lruCache) Get(fileIndex int32) (*segment.Segment, error) {
	c.mu.Lock()
	if el, ok := c.items[fileIndex]; ok {
		c.order.MoveToFront(el)
		seg := el.Value.(*cacheEntry).seg
		c.mu.Unlock()
		return seg, nil
	}
	c.mu.Unlock()

	seg, err := c.loader(fileIndex)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[fileIndex]; ok {
		// Lost the race to a concurrent loader; keep the winner, drop ours.
		seg.Close()
		c.order.MoveToFront(el)
		return el.Value.(*cacheEntry).seg, nil
	}

	el := c.order.PushFront(&cacheEntry{fileIndex: fileIndex, seg: seg})
	c.items[fileIndex] = el

	if c.capacity > 0 {
		for c.order.Len() > c.capacity {
			back := c.order.Back()
			if back == nil {
				break
			}
			entry := back.Value.(*cacheEntry)
			entry.seg.Close()
			c.order.Remove(back)
			delete(c.items, entry.fileIndex)
		}
	}
	return seg, nil
}

// Close evicts and closes every cached segment.
func (c *lruCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for el := c.order.Front(); el != nil; el = el.Next() {
		el.Value.(*cacheEntry).seg.Close()
	}
	c.items = make(map[int32]*list.Element)
	c.order = list.New()
}
