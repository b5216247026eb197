package resolution

import (
	"context"
	"sync"
)

// Entry is a claimed identity in the cache. Its node becomes available once the owner completes it.
type Entry struct {
	keys []string
	done chan struct{}
	node *Node
}

// Keys returns the identity keys the entry is registered under.
func (entry *Entry) Keys() []string {
	return append([]string(nil), entry.keys...)
}

// Cache maps identity keys to resolution entries for one tree build.
type Cache struct {
	mutex   sync.Mutex
	entries map[string]*Entry
	count   int
}

// NewCache constructs an empty Cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*Entry)}
}

// Claim atomically returns the entry already registered under any of the keys, or registers a
// new entry under all of them. The boolean reports whether the caller owns a new entry.
func (cache *Cache) Claim(keys []string) (*Entry, bool) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	for _, key := range keys {
		if existing, found := cache.entries[key]; found {
			return existing, false
		}
	}

	entry := &Entry{keys: append([]string(nil), keys...), done: make(chan struct{})}
	for _, key := range keys {
		cache.entries[key] = entry
	}
	cache.count++
	return entry, true
}

// Alias registers additional keys for an entry. Keys already owned by another entry are left alone.
func (cache *Cache) Alias(entry *Entry, keys ...string) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	for _, key := range keys {
		if _, found := cache.entries[key]; found {
			continue
		}
		cache.entries[key] = entry
		entry.keys = append(entry.keys, key)
	}
}

// Complete publishes the owner's node and releases waiters. Completing twice has no effect.
func (cache *Cache) Complete(entry *Entry, node *Node) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	select {
	case <-entry.done:
		return
	default:
	}
	entry.node = node
	close(entry.done)
}

// Wait blocks until the entry is completed or the context ends.
func (cache *Cache) Wait(waitContext context.Context, entry *Entry) (*Node, error) {
	select {
	case <-entry.done:
		cache.mutex.Lock()
		defer cache.mutex.Unlock()
		return entry.node, nil
	case <-waitContext.Done():
		return nil, waitContext.Err()
	}
}

// Lookup returns the entry registered under the key.
func (cache *Cache) Lookup(key string) (*Entry, bool) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	entry, found := cache.entries[key]
	return entry, found
}

// Len returns the number of distinct claimed entries.
func (cache *Cache) Len() int {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	return cache.count
}
