// Package session tracks the loaded corpus of each (owner, collection) and serializes ingestion
// per collection.
package session

import (
	"sort"
	"sync"

	"github.com/hyperjump/kotae/internal/corpus"
)

// Key identifies a collection of one owner.
type Key struct {
	Owner      string
	Collection string
}

func (k Key) String() string {
	return k.Owner + "/" + k.Collection
}

// Registry maps collection keys to their currently published corpus. Published corpora are
// never mutated; a new version replaces the old one atomically with Swap, so a query that
// captured the old pointer keeps a consistent view.
type Registry struct {
	mu      sync.RWMutex
	corpora map[Key]*corpus.Corpus

	locksMu sync.Mutex
	locks   map[Key]*sync.Mutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		corpora: make(map[Key]*corpus.Corpus),
		locks:   make(map[Key]*sync.Mutex),
	}
}

// Get returns the published corpus for key.
func (r *Registry) Get(key Key) (*corpus.Corpus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.corpora[key]
	return c, ok
}

// Swap publishes c for key and returns the previous corpus, if any.
func (r *Registry) Swap(key Key, c *corpus.Corpus) *corpus.Corpus {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.corpora[key]
	r.corpora[key] = c
	return prev
}

// Evict forgets key. It reports whether a corpus was loaded.
func (r *Registry) Evict(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.corpora[key]
	delete(r.corpora, key)
	return ok
}

// Len returns the number of loaded collections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.corpora)
}

// Keys returns the loaded keys, sorted by owner then collection.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	keys := make([]Key, 0, len(r.corpora))
	for k := range r.corpora {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Owner != keys[j].Owner {
			return keys[i].Owner < keys[j].Owner
		}
		return keys[i].Collection < keys[j].Collection
	})
	return keys
}

// Lock acquires the ingestion lock for key and returns its release function.
// Queries never take this lock.
func (r *Registry) Lock(key Key) (unlock func()) {
	r.locksMu.Lock()
	m, ok := r.locks[key]
	if !ok {
		m = &sync.Mutex{}
		r.locks[key] = m
	}
	r.locksMu.Unlock()
	m.Lock()
	return m.Unlock
}
