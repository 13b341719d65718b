// Package cascade orchestrates the L1 and L2 caches behind a single
// get_chunks/put_chunks/invalidate contract: write-through on insert,
// read-through promotion on an L2 hit, fan-out invalidation on change.
package cascade

import (
	"context"
	"encoding/json"
	"time"

	"github.com/giak/mnemolite/internal/cachel1"
	"github.com/giak/mnemolite/internal/cachel2"
	"github.com/giak/mnemolite/internal/chunk"
	"github.com/giak/mnemolite/internal/fingerprint"
)

// Stats merges the two layers and reports the combined hit rate
// H = H_L1 + (1 - H_L1) * H_L2.
type Stats struct {
	L1          cachel1.Stats `json:"l1"`
	L2          cachel2.Stats `json:"l2"`
	CombinedHit float64       `json:"combined_hit_rate"`
}

// Cache is the Cascade Cache component.
type Cache struct {
	l1  *cachel1.Cache
	l2  *cachel2.Cache
	ttl time.Duration
}

// New builds a Cascade over an L1 and L2 layer. ttl is the default TTL
// applied to L2 chunk-cache writes (§6.6 l2.ttl.chunks).
func New(l1 *cachel1.Cache, l2 *cachel2.Cache, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	return &Cache{l1: l1, l2: l2, ttl: ttl}
}

func l2Key(filePath string, fp fingerprint.Fingerprint) string {
	return "chunks:" + filePath + ":" + fp.String()
}

type wireEntry struct {
	Chunks []chunk.Chunk `json:"chunks"`
}

// GetChunks attempts L1, then L2 with read-through promotion, per §4.4.
func (c *Cache) GetChunks(ctx context.Context, filePath string, sourceBytes []byte) ([]chunk.Chunk, bool) {
	if chunks, ok := c.l1.Get(filePath, sourceBytes); ok {
		return chunks, true
	}

	fp := fingerprint.Hash(sourceBytes)
	raw, ok := c.l2.Get(ctx, l2Key(filePath, fp))
	if !ok {
		return nil, false
	}

	var entry wireEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false
	}

	c.l1.Put(filePath, sourceBytes, entry.Chunks) // promotion
	return entry.Chunks, true
}

// PutChunks writes L1 unconditionally and attempts L2 best-effort.
func (c *Cache) PutChunks(ctx context.Context, filePath string, sourceBytes []byte, chunks []chunk.Chunk) {
	c.l1.Put(filePath, sourceBytes, chunks)

	fp := fingerprint.Hash(sourceBytes)
	raw, err := json.Marshal(wireEntry{Chunks: chunks})
	if err != nil {
		return
	}
	c.l2.Set(ctx, l2Key(filePath, fp), raw, c.ttl)
}

// Invalidate drops the L1 entry and every L2 key for filePath regardless
// of fingerprint.
func (c *Cache) Invalidate(ctx context.Context, filePath string) {
	c.l1.Invalidate(filePath)
	c.l2.DeletePattern(ctx, "chunks:"+filePath+":*")
}

// InvalidateRepository drops every chunk cache entry for a repository.
// L1 has no repository index, so it is cleared entirely for safety;
// L2 is pattern-deleted by repository-scoped file path prefix.
func (c *Cache) InvalidateRepository(ctx context.Context, repository string) {
	c.l1.Clear()
	c.l2.DeletePattern(ctx, "chunks:"+repository+"/*")
}

// InvalidateAll drops every chunk cache entry across every repository,
// for the §6.1 clear_cache(scope: all) operation.
func (c *Cache) InvalidateAll(ctx context.Context) {
	c.l1.Clear()
	c.l2.DeletePattern(ctx, "chunks:*")
}

// Stats merges per-layer counters and computes the combined hit rate.
func (c *Cache) Stats() Stats {
	l1Stats := c.l1.Stats()
	l2Stats := c.l2.Stats()
	combined := l1Stats.HitRate + (1-l1Stats.HitRate)*l2Stats.HitRate
	return Stats{L1: l1Stats, L2: l2Stats, CombinedHit: combined}
}
