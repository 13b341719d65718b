package cachel1

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giak/mnemolite/internal/chunk"
)

func sampleChunks(n int) []chunk.Chunk {
	out := make([]chunk.Chunk, n)
	for i := range out {
		out[i] = chunk.Chunk{
			ChunkID:    "c",
			SourceCode: "func f() {}",
		}
	}
	return out
}

func TestGetMissOnEmptyCache(t *testing.T) {
	c := New(1 << 20)
	got, ok := c.Get("a.go", []byte("package a"))
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestPutThenGetSameBytes(t *testing.T) {
	c := New(1 << 20)
	src := []byte("package a\nfunc A() {}\n")
	chunks := sampleChunks(2)

	c.Put("a.go", src, chunks)
	got, ok := c.Get("a.go", src)
	require.True(t, ok)
	assert.Len(t, got, 2)
}

func TestGetDifferentBytesEvictsAndMisses(t *testing.T) {
	c := New(1 << 20)
	src := []byte("package a\n")
	c.Put("a.go", src, sampleChunks(1))

	got, ok := c.Get("a.go", []byte("package b\n"))
	assert.False(t, ok)
	assert.Nil(t, got)

	// entry must have been evicted: even the original bytes now miss
	_, ok = c.Get("a.go", src)
	assert.False(t, ok)
}

func TestPutReplacesPriorEntryForSamePath(t *testing.T) {
	c := New(1 << 20)
	c.Put("a.go", []byte("v1"), sampleChunks(1))
	c.Put("a.go", []byte("v2"), sampleChunks(3))

	stats := c.Stats()
	assert.Equal(t, 1, stats.Entries)

	got, ok := c.Get("a.go", []byte("v2"))
	require.True(t, ok)
	assert.Len(t, got, 3)
}

func TestInvalidateRemovesEntry(t *testing.T) {
	c := New(1 << 20)
	src := []byte("package a")
	c.Put("a.go", src, sampleChunks(1))
	c.Invalidate("a.go")

	_, ok := c.Get("a.go", src)
	assert.False(t, ok)
}

func TestClearEmptiesCache(t *testing.T) {
	c := New(1 << 20)
	c.Put("a.go", []byte("x"), sampleChunks(1))
	c.Put("b.go", []byte("y"), sampleChunks(1))
	c.Clear()

	stats := c.Stats()
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, int64(0), stats.SizeBytes)
}

func TestEvictionUnderByteBudget(t *testing.T) {
	// Each entry is 11 bytes (one "func f() {}" chunk); force a budget that
	// only fits one entry at a time.
	c := New(11)
	c.Put("a.go", []byte("a"), sampleChunks(1))
	c.Put("b.go", []byte("b"), sampleChunks(1))

	stats := c.Stats()
	assert.LessOrEqual(t, stats.SizeBytes, stats.MaxBytes)
	// "a" should have been evicted in favor of "b" (LRU, insertion order).
	_, ok := c.Get("a.go", []byte("a"))
	assert.False(t, ok)
	got, ok := c.Get("b.go", []byte("b"))
	assert.True(t, ok)
	assert.Len(t, got, 1)
}

func TestStatsHitRate(t *testing.T) {
	c := New(1 << 20)
	src := []byte("package a")
	c.Put("a.go", src, sampleChunks(1))

	c.Get("a.go", src)             // hit
	c.Get("missing.go", []byte{}) // miss

	stats := c.Stats()
	assert.Equal(t, "L1", stats.Type)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 0.0001)
}
