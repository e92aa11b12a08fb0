package ttssession

import (
	"sync"

	"github.com/voxstream/gateway/internal/wsproto"
)

// CacheEntry is one replayable audio-chunk envelope, tagged with the text
// unit range it was synthesized from.
type CacheEntry struct {
	UnitIndexStart int64
	UnitIndexEnd   int64
	Chunk          wsproto.AudioChunk
}

// Cache is a bounded, oldest-first ring of recently emitted audio chunks
// used to service "resume" requests. Ownership is exclusive to the session
// it belongs to: the synth loop appends, the resume path reads.
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  []CacheEntry
}

// NewCache returns a Cache holding at most capacity entries. capacity <= 0
// defaults to 64.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 64
	}
	return &Cache{capacity: capacity}
}

// Add appends e, evicting the oldest entry if the cache is at capacity.
func (c *Cache) Add(e CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	if len(c.entries) > c.capacity {
		c.entries = c.entries[len(c.entries)-c.capacity:]
	}
}

// EntriesAfter returns, oldest-first, every cached entry whose
// UnitIndexEnd is strictly greater than lastUnitIndexReceived.
func (c *Cache) EntriesAfter(lastUnitIndexReceived int64) []CacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		if e.UnitIndexEnd > lastUnitIndexReceived {
			out = append(out, e)
		}
	}
	return out
}

// OldestUnitIndexStart reports the UnitIndexStart of the oldest retained
// entry, used to decide whether a resume request predates the cache
// window. The second return value is false when the cache is empty.
func (c *Cache) OldestUnitIndexStart() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 {
		return 0, false
	}
	return c.entries[0].UnitIndexStart, true
}
