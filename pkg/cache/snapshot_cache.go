package cache

import (
	"hash/fnv"
	"sync"
	"time"
)

const numShards = 16

// SnapshotCache keeps the most recent MT5 positions snapshot per user so a
// tab that connects between bridge pushes is served the last known state
// instead of an empty panel. Entries expire after the configured TTL.
type SnapshotCache struct {
	shards [numShards]*snapshotShard
	ttl    time.Duration
}

type snapshotShard struct {
	mu    sync.RWMutex
	items map[string]snapshotEntry
}

type snapshotEntry struct {
	payload   []byte
	updatedAt time.Time
}

// NewSnapshotCache creates a sharded snapshot cache. A non-positive ttl
// disables expiry.
func NewSnapshotCache(ttl time.Duration) *SnapshotCache {
	c := &SnapshotCache{ttl: ttl}
	for i := 0; i < numShards; i++ {
		c.shards[i] = &snapshotShard{items: make(map[string]snapshotEntry)}
	}
	return c
}

func (c *SnapshotCache) getShard(userID string) *snapshotShard {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return c.shards[h.Sum32()%numShards]
}

// Set stores the latest snapshot payload for a user.
func (c *SnapshotCache) Set(userID string, payload []byte) {
	shard := c.getShard(userID)
	shard.mu.Lock()
	shard.items[userID] = snapshotEntry{payload: payload, updatedAt: time.Now()}
	shard.mu.Unlock()
}

// Get returns the cached snapshot for a user, or false when absent/expired.
func (c *SnapshotCache) Get(userID string) ([]byte, bool) {
	shard := c.getShard(userID)
	shard.mu.RLock()
	entry, ok := shard.items[userID]
	shard.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && time.Since(entry.updatedAt) > c.ttl {
		return nil, false
	}
	return entry.payload, true
}

// Delete removes a user's snapshot (account unlinked, user deleted).
func (c *SnapshotCache) Delete(userID string) {
	shard := c.getShard(userID)
	shard.mu.Lock()
	delete(shard.items, userID)
	shard.mu.Unlock()
}

// Len returns total cached snapshots across all shards.
func (c *SnapshotCache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.items)
		shard.mu.RUnlock()
	}
	return total
}

// Cleanup removes entries older than the TTL and reports how many went.
func (c *SnapshotCache) Cleanup() int {
	if c.ttl <= 0 {
		return 0
	}
	removed := 0
	cutoff := time.Now().Add(-c.ttl)

	for _, shard := range c.shards {
		shard.mu.Lock()
		for user, entry := range shard.items {
			if entry.updatedAt.Before(cutoff) {
				delete(shard.items, user)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}
