package store

import (
	"container/list"
	"sync"

	"github.com/sirupsen/logrus"
)

// LRUBlockStore wraps another BlockStore with a fixed-size read cache. It
// is a decorator any BlockStore can sit behind, rather than a cache wired
// directly into one page manager.
type LRUBlockStore struct {
	mu       sync.Mutex
	backing  BlockStore
	capacity int
	order    *list.List
	entries  map[uint64]*list.Element
	log      *logrus.Entry
}

type lruEntry struct {
	id   uint64
	data []byte
}

// DefaultCacheSize is the cache capacity used when none is given.
const DefaultCacheSize = 100

func NewLRUBlockStore(backing BlockStore, capacity int) *LRUBlockStore {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &LRUBlockStore{
		backing:  backing,
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[uint64]*list.Element),
		log:      logrus.WithField("component", "lrustore"),
	}
}

func (c *LRUBlockStore) Get(id uint64) ([]byte, bool, error) {
	c.mu.Lock()
	if el, ok := c.entries[id]; ok {
		c.order.MoveToFront(el)
		data := el.Value.(*lruEntry).data
		c.mu.Unlock()
		return data, true, nil
	}
	c.mu.Unlock()

	data, ok, err := c.backing.Get(id)
	if err != nil || !ok {
		return data, ok, err
	}
	c.insert(id, data)
	return data, true, nil
}

func (c *LRUBlockStore) Put(id uint64, data []byte) error {
	if err := c.backing.Put(id, data); err != nil {
		return err
	}
	c.insert(id, data)
	return nil
}

func (c *LRUBlockStore) insert(id uint64, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[id]; ok {
		el.Value.(*lruEntry).data = data
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&lruEntry{id: id, data: data})
	c.entries[id] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*lruEntry).id)
			c.log.WithField("id", oldest.Value.(*lruEntry).id).Trace("evicted")
		}
	}
}

func (c *LRUBlockStore) Generator() ([]Record, error) { return c.backing.Generator() }
func (c *LRUBlockStore) Options() Options             { return c.backing.Options() }
