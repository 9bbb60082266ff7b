package graph

import (
	"container/list"
	"context"
	"sync"

	"github.com/prayatna/fraudscreen/backend/pkg/common"
	"github.com/prayatna/fraudscreen/backend/pkg/logger"
)

// Cache memoizes graph snapshots keyed by record-set fingerprint.
//
// At most one build runs per fingerprint at a time: concurrent callers for
// the same fingerprint wait on the in-flight build instead of duplicating
// work. Entries are evicted least-recently-used once capacity is exceeded;
// since snapshots are immutable, eviction never invalidates a snapshot a
// caller is still reading. Failed builds are not cached.
type Cache struct {
	minRingSize int
	capacity    int

	mu      sync.Mutex
	entries map[common.Fingerprint]*cacheEntry
	lru     *list.List // front = most recently used, values are fingerprints
}

type cacheEntry struct {
	snapshot *Snapshot
	err      error
	ready    chan struct{}
	elem     *list.Element
}

// NewCacheParams contains configuration for creating a Cache.
type NewCacheParams struct {
	MinRingSize int
	Capacity    int
}

// NewCache creates a snapshot cache. Capacity bounds the number of retained
// snapshots (minimum 1); MinRingSize is passed through to ring detection.
func NewCache(params NewCacheParams) *Cache {
	capacity := params.Capacity
	if capacity < 1 {
		capacity = 1
	}
	minRingSize := params.MinRingSize
	if minRingSize < 2 {
		minRingSize = 3
	}
	return &Cache{
		minRingSize: minRingSize,
		capacity:    capacity,
		entries:     make(map[common.Fingerprint]*cacheEntry),
		lru:         list.New(),
	}
}

// GetOrBuild returns the cached snapshot for the records' fingerprint, or
// builds one if none exists. The returned snapshot must be treated as
// read-only.
func (c *Cache) GetOrBuild(ctx context.Context, records []common.BeneficiaryRecord) (*Snapshot, error) {
	fingerprint := FingerprintRecords(records)

	c.mu.Lock()
	if entry, ok := c.entries[fingerprint]; ok {
		c.lru.MoveToFront(entry.elem)
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-entry.ready:
		}
		if entry.err != nil {
			return nil, entry.err
		}
		return entry.snapshot, nil
	}

	entry := &cacheEntry{ready: make(chan struct{})}
	entry.elem = c.lru.PushFront(fingerprint)
	c.entries[fingerprint] = entry
	c.evictLocked()
	c.mu.Unlock()

	logger.Debug("[GraphCache] Building snapshot", "fingerprint", string(fingerprint)[:12], "records", len(records))

	snapshot, err := BuildSnapshot(records, c.minRingSize)
	if err == nil && len(snapshot.Malformed) > 0 {
		logger.Warn("[GraphCache] Snapshot contains unlinkable records",
			"fingerprint", string(fingerprint)[:12], "malformed", len(snapshot.Malformed))
	}

	c.mu.Lock()
	if err != nil {
		// No cached entry is written for a failed build.
		c.removeLocked(fingerprint, entry)
	} else {
		entry.snapshot = snapshot
	}
	entry.err = err
	c.mu.Unlock()
	close(entry.ready)

	if err != nil {
		return nil, err
	}
	// A completed snapshot is published even when this caller's context was
	// cancelled during the build. Waiters with live contexts get the
	// snapshot; only this caller observes its own cancellation.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return snapshot, nil
}

// Len reports the number of cached snapshots.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Latest returns the most recently used snapshot, or nil when the cache is
// empty or the newest entry is still building.
func (c *Cache) Latest() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		entry := c.entries[elem.Value.(common.Fingerprint)]
		select {
		case <-entry.ready:
			if entry.err == nil {
				return entry.snapshot
			}
		default:
		}
	}
	return nil
}

// evictLocked drops least-recently-used ready entries until the cache fits
// its capacity. In-flight builds are never evicted.
func (c *Cache) evictLocked() {
	for len(c.entries) > c.capacity {
		var victim *list.Element
		for elem := c.lru.Back(); elem != nil && victim == nil; elem = elem.Prev() {
			entry := c.entries[elem.Value.(common.Fingerprint)]
			select {
			case <-entry.ready:
				victim = elem
			default:
			}
		}
		if victim == nil {
			return
		}
		fingerprint := victim.Value.(common.Fingerprint)
		c.removeLocked(fingerprint, c.entries[fingerprint])
	}
}

func (c *Cache) removeLocked(fingerprint common.Fingerprint, entry *cacheEntry) {
	if entry.elem != nil {
		c.lru.Remove(entry.elem)
		entry.elem = nil
	}
	delete(c.entries, fingerprint)
}
