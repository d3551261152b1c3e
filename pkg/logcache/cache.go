// Package logcache keeps the last-known log feed of recently viewed
// processes so navigating back to one is instant. It is an explicit
// injected service, bounded both by entry count (LRU) and age (TTL).
//
// Live processes are never cached: their feeds change too quickly for a
// snapshot to be worth anything.
package logcache

import (
	"log/slog"
	"sync"
	"time"

	"github.com/taskdeck/deckstream/pkg/api"
)

const (
	DefaultMaxEntries = 16
	DefaultTTL        = 5 * time.Minute
)

// Snapshot is one cached feed: the entries last shown plus the pagination
// position to resume from.
type Snapshot struct {
	Entries []api.LogEntry
	Cursor  string
	HasMore bool
}

type item struct {
	snap     Snapshot
	storedAt time.Time
	lastUsed time.Time
}

// Cache is a TTL+LRU bounded map from process ID to feed snapshot. Safe for
// concurrent use.
type Cache struct {
	mu    sync.Mutex
	items map[string]*item
	max   int
	ttl   time.Duration
	now   func() time.Time
}

// New creates a cache holding at most max snapshots, each for at most ttl.
func New(max int, ttl time.Duration) *Cache {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		items: make(map[string]*item),
		max:   max,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get returns the cached snapshot for a process, if present and fresh.
func (c *Cache) Get(processID string) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[processID]
	if !ok {
		return Snapshot{}, false
	}
	now := c.now()
	if now.Sub(it.storedAt) > c.ttl {
		delete(c.items, processID)
		return Snapshot{}, false
	}
	it.lastUsed = now
	return it.snap, true
}

// Put stores a snapshot for a finished process. live marks a process that
// is still running; such snapshots are dropped, not stored.
func (c *Cache) Put(processID string, snap Snapshot, live bool) {
	if live {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.expireLocked(now)
	if _, exists := c.items[processID]; !exists && len(c.items) >= c.max {
		c.evictLRULocked()
	}
	c.items[processID] = &item{snap: snap, storedAt: now, lastUsed: now}
}

// Delete drops a process's snapshot, e.g. after its history was rewritten.
func (c *Cache) Delete(processID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, processID)
}

// Len returns the number of cached snapshots, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache) expireLocked(now time.Time) {
	for id, it := range c.items {
		if now.Sub(it.storedAt) > c.ttl {
			delete(c.items, id)
		}
	}
}

// evictLRULocked removes the least recently used snapshot.
func (c *Cache) evictLRULocked() {
	var lruID string
	var lruTime time.Time
	for id, it := range c.items {
		if lruID == "" || it.lastUsed.Before(lruTime) {
			lruID = id
			lruTime = it.lastUsed
		}
	}
	if lruID != "" {
		delete(c.items, lruID)
		slog.Debug("log cache evicted snapshot", slog.String("process", lruID))
	}
}
