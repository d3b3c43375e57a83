package embedding

import (
	"container/list"
	"context"
	"slices"
	"sync"
)

// lru is a fixed-capacity least-recently-used map.
type lru[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front is most recent
	items    map[K]*list.Element
}

type lruItem[K comparable, V any] struct {
	key K
	val V
}

func newLRU[K comparable, V any](capacity int) *lru[K, V] {
	return &lru[K, V]{capacity: capacity, order: list.New(), items: make(map[K]*list.Element)}
}

func (c *lru[K, V]) get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*lruItem[K, V]).val, true
}

func (c *lru[K, V]) put(key K, val V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*lruItem[K, V]).val = val
		c.order.MoveToFront(el)
		return
	}
	c.items[key] = c.order.PushFront(&lruItem[K, V]{key: key, val: val})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*lruItem[K, V]).key)
	}
}

func (c *lru[K, V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Cached wraps an Embedder with an LRU of recent texts. Repeated questions skip the service.
// Failed calls are not cached, and callers get their own copy of each vector.
type Cached struct {
	Embedder
	vectors *lru[string, []float32]
}

// NewCached wraps e with room for capacity texts. A non-positive capacity returns e unchanged.
func NewCached(e Embedder, capacity int) Embedder {
	if capacity <= 0 {
		return e
	}
	return &Cached{Embedder: e, vectors: newLRU[string, []float32](capacity)}
}

// Embed returns a copy of the cached vector for text, embedding and caching it on a miss.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.vectors.get(text); ok {
		return slices.Clone(v), nil
	}
	v, err := c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.vectors.put(text, slices.Clone(v))
	return v, nil
}

// Len reports how many texts are cached.
func (c *Cached) Len() int { return c.vectors.len() }
