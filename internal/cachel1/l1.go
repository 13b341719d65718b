// Package cachel1 implements the in-process, byte-budgeted LRU chunk
// cache. It is the L1 layer of the cascade: single-writer per key,
// fail-closed on any fingerprint mismatch, and incapable of returning an
// error — an empty result is the only failure mode.
package cachel1

import (
	"container/list"
	"sync"
	"time"

	"github.com/giak/mnemolite/internal/chunk"
	"github.com/giak/mnemolite/internal/fingerprint"
)

// CachedEntry is the value stored per file_path, per the data model's
// CachedEntry shape.
type CachedEntry struct {
	FilePath    string
	Fingerprint fingerprint.Fingerprint
	Chunks      []chunk.Chunk
	SizeBytes   int64
	CachedAt    time.Time
}

// Stats reports the L1 layer's observed counters.
type Stats struct {
	Type        string  `json:"type"`
	SizeBytes   int64   `json:"size_bytes"`
	MaxBytes    int64   `json:"max_bytes"`
	Entries     int     `json:"entries"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	Utilization float64 `json:"utilization"`
}

type entryRef struct {
	entry *CachedEntry
}

// Cache is a strict-LRU, byte-bounded cache keyed by file_path.
//
// hashicorp/golang-lru/v2 bounds by entry count, not bytes; §4.2 requires
// a byte budget, so the recency list is kept directly with
// container/list (the same structure golang-lru/v2 uses internally) and
// paired with an explicit running byte total.
type Cache struct {
	mu       sync.Mutex
	maxBytes int64
	curBytes int64
	ll       *list.List // front = most recently used
	items    map[string]*list.Element

	hits   int64
	misses int64
}

// New creates an L1 cache with the given byte budget.
func New(maxBytes int64) *Cache {
	if maxBytes <= 0 {
		maxBytes = 64 * 1024 * 1024
	}
	return &Cache{
		maxBytes: maxBytes,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Get hashes sourceBytes and, if filePath is present with a matching
// fingerprint, returns its chunks and marks the entry most-recently-used.
// Any mismatch evicts the stale entry and returns (nil, false) — fail
// closed, never serve stale chunks.
func (c *Cache) Get(filePath string, sourceBytes []byte) ([]chunk.Chunk, bool) {
	fp := fingerprint.Hash(sourceBytes)

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[filePath]
	if !ok {
		c.misses++
		return nil, false
	}
	ref := el.Value.(*entryRef)
	if ref.entry.Fingerprint != fp {
		c.removeElement(el)
		c.misses++
		return nil, false
	}

	c.ll.MoveToFront(el)
	c.hits++
	return ref.entry.Chunks, true
}

// Put stores a new entry for filePath, evicting least-recently-used
// entries until the byte budget is satisfied. A prior entry for the same
// file_path, if any, is removed first.
func (c *Cache) Put(filePath string, sourceBytes []byte, chunks []chunk.Chunk) {
	fp := fingerprint.Hash(sourceBytes)
	size := entrySize(chunks)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[filePath]; ok {
		c.removeElement(el)
	}

	entry := &CachedEntry{
		FilePath:    filePath,
		Fingerprint: fp,
		Chunks:      chunks,
		SizeBytes:   size,
		CachedAt:    time.Now(),
	}
	el := c.ll.PushFront(&entryRef{entry: entry})
	c.items[filePath] = el
	c.curBytes += size

	for c.curBytes > c.maxBytes {
		back := c.ll.Back()
		if back == nil {
			break
		}
		c.removeElement(back)
	}
}

// Invalidate removes the entry for filePath, if any.
func (c *Cache) Invalidate(filePath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[filePath]; ok {
		c.removeElement(el)
	}
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
	c.curBytes = 0
}

// Stats returns the current L1 statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	var util float64
	if c.maxBytes > 0 {
		util = float64(c.curBytes) / float64(c.maxBytes)
	}
	return Stats{
		Type:        "L1",
		SizeBytes:   c.curBytes,
		MaxBytes:    c.maxBytes,
		Entries:     len(c.items),
		Hits:        c.hits,
		Misses:      c.misses,
		HitRate:     hitRate,
		Utilization: util,
	}
}

// removeElement must be called with mu held.
func (c *Cache) removeElement(el *list.Element) {
	ref := el.Value.(*entryRef)
	c.ll.Remove(el)
	delete(c.items, ref.entry.FilePath)
	c.curBytes -= ref.entry.SizeBytes
}

func entrySize(chunks []chunk.Chunk) int64 {
	var total int64
	for _, ch := range chunks {
		total += int64(len(ch.SourceCode))
		total += int64(len(ch.EmbeddingText) * 4)
		total += int64(len(ch.EmbeddingCode) * 4)
	}
	return total
}
