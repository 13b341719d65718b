package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giak/mnemolite/internal/chunk"
	"github.com/giak/mnemolite/internal/store"
)

type fakeBM25 struct {
	results []*store.BM25Result
}

func (f *fakeBM25) Index(ctx context.Context, docs []*store.Document) error { return nil }
func (f *fakeBM25) Search(ctx context.Context, query string, limit int) ([]*store.BM25Result, error) {
	return f.results, nil
}
func (f *fakeBM25) Delete(ctx context.Context, docIDs []string) error { return nil }
func (f *fakeBM25) AllIDs() ([]string, error)                        { return nil, nil }
func (f *fakeBM25) Stats() *store.IndexStats                         { return &store.IndexStats{} }
func (f *fakeBM25) Save(path string) error                           { return nil }
func (f *fakeBM25) Load(path string) error                           { return nil }
func (f *fakeBM25) Close() error                                     { return nil }

type fakeVector struct {
	results []*store.VectorResult
}

func (f *fakeVector) Add(ctx context.Context, ids []string, vectors [][]float32) error { return nil }
func (f *fakeVector) Search(ctx context.Context, query []float32, k int) ([]*store.VectorResult, error) {
	return f.results, nil
}
func (f *fakeVector) Delete(ctx context.Context, ids []string) error { return nil }
func (f *fakeVector) AllIDs() []string                               { return nil }
func (f *fakeVector) Contains(id string) bool                        { return false }
func (f *fakeVector) Count() int                                     { return len(f.results) }
func (f *fakeVector) Save(path string) error                         { return nil }
func (f *fakeVector) Load(path string) error                         { return nil }
func (f *fakeVector) Close() error                                   { return nil }

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}
func (fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}
func (fakeEmbedder) Dimensions() int             { return 3 }
func (fakeEmbedder) ModelName() string           { return "fake" }
func (fakeEmbedder) Available(ctx context.Context) bool { return true }
func (fakeEmbedder) Close() error                { return nil }
func (fakeEmbedder) SetBatchIndex(idx int)       {}
func (fakeEmbedder) SetFinalBatch(isFinal bool)  {}

type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embedding backend unavailable")
}
func (failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("embedding backend unavailable")
}
func (failingEmbedder) Dimensions() int                   { return 3 }
func (failingEmbedder) ModelName() string                 { return "failing" }
func (failingEmbedder) Available(ctx context.Context) bool { return false }
func (failingEmbedder) Close() error                      { return nil }
func (failingEmbedder) SetBatchIndex(idx int)             {}
func (failingEmbedder) SetFinalBatch(isFinal bool)        {}

func newTestMetadata(t *testing.T) store.MetadataStore {
	t.Helper()
	s, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedChunk(t *testing.T, ms store.MetadataStore, id, repo, lang, returnType string) {
	t.Helper()
	c := &chunk.Chunk{
		ChunkID:       id,
		Repository:    repo,
		FilePath:      "pkg/" + id + ".go",
		Language:      lang,
		Kind:          chunk.KindFunction,
		Name:          id,
		QualifiedName: "pkg." + id,
		StartLine:     1,
		EndLine:       5,
		SourceCode:    "func " + id + "() {}",
		ContentHash:   "h-" + id,
		Metadata:      map[string]any{"return_type": returnType},
	}
	require.NoError(t, ms.SaveChunks(t.Context(), []*chunk.Chunk{c}))
}

func TestSearchFusesLexicalAndVector(t *testing.T) {
	ctx := t.Context()
	ms := newTestMetadata(t)
	seedChunk(t, ms, "a", "repo1", "go", "error")
	seedChunk(t, ms, "b", "repo1", "go", "string")

	bm25 := &fakeBM25{results: []*store.BM25Result{{DocID: "a", Score: 5}}}
	vec := &fakeVector{results: []*store.VectorResult{{ID: "b", Score: 0.9}, {ID: "a", Score: 0.5}}}

	eng := New(bm25, vec, ms, fakeEmbedder{}, nil)
	res, err := eng.Search(ctx, "find error handler", DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, res.Results, 2)
	assert.Equal(t, "a", res.Results[0].Chunk.ChunkID) // in both lists, ranks first
	assert.True(t, res.Results[0].InBothLists)
	assert.False(t, res.CacheHit)
}

func TestSearchAppliesFilters(t *testing.T) {
	ctx := t.Context()
	ms := newTestMetadata(t)
	seedChunk(t, ms, "a", "repo1", "go", "error")
	seedChunk(t, ms, "b", "repo1", "python", "string")

	bm25 := &fakeBM25{results: []*store.BM25Result{{DocID: "a", Score: 5}, {DocID: "b", Score: 4}}}
	vec := &fakeVector{}

	eng := New(bm25, vec, ms, fakeEmbedder{}, nil)
	opts := DefaultOptions()
	opts.Filters.Language = "go"
	res, err := eng.Search(ctx, "handler", opts)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "a", res.Results[0].Chunk.ChunkID)
}

func TestSearchFiltersByParamType(t *testing.T) {
	ctx := t.Context()
	ms := newTestMetadata(t)

	withMatch := &chunk.Chunk{
		ChunkID:       "a",
		Repository:    "repo1",
		FilePath:      "pkg/a.go",
		Language:      "go",
		Kind:          chunk.KindFunction,
		Name:          "a",
		QualifiedName: "pkg.a",
		StartLine:     1,
		EndLine:       5,
		SourceCode:    "func a(ctx context.Context) {}",
		ContentHash:   "h-a",
		Metadata:      map[string]any{"param_types": map[string]string{"ctx": "context.Context"}},
	}
	withoutMatch := &chunk.Chunk{
		ChunkID:       "b",
		Repository:    "repo1",
		FilePath:      "pkg/b.go",
		Language:      "go",
		Kind:          chunk.KindFunction,
		Name:          "b",
		QualifiedName: "pkg.b",
		StartLine:     1,
		EndLine:       5,
		SourceCode:    "func b(n int) {}",
		ContentHash:   "h-b",
		Metadata:      map[string]any{"param_types": map[string]string{"n": "int"}},
	}
	require.NoError(t, ms.SaveChunks(ctx, []*chunk.Chunk{withMatch, withoutMatch}))

	bm25 := &fakeBM25{results: []*store.BM25Result{{DocID: "a", Score: 5}, {DocID: "b", Score: 4}}}
	eng := New(bm25, &fakeVector{}, ms, fakeEmbedder{}, nil)

	opts := DefaultOptions()
	opts.Filters.ParamType = "context.Context"
	res, err := eng.Search(ctx, "handler", opts)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "a", res.Results[0].Chunk.ChunkID)
}

func TestParamTypesContainHandlesBothMapShapes(t *testing.T) {
	fresh := map[string]string{"ctx": "context.Context", "n": "int"}
	assert.True(t, paramTypesContain(fresh, "context.Context"))
	assert.False(t, paramTypesContain(fresh, "string"))

	roundTripped := map[string]any{"ctx": "context.Context", "n": "int"}
	assert.True(t, paramTypesContain(roundTripped, "context.Context"))
	assert.False(t, paramTypesContain(roundTripped, "string"))
}

func TestSearchDegradesToLexicalOnlyWhenEmbeddingFails(t *testing.T) {
	ctx := t.Context()
	ms := newTestMetadata(t)
	seedChunk(t, ms, "a", "repo1", "go", "error")

	bm25 := &fakeBM25{results: []*store.BM25Result{{DocID: "a", Score: 5}}}
	vec := &fakeVector{results: []*store.VectorResult{{ID: "a", Score: 0.9}}}

	eng := New(bm25, vec, ms, failingEmbedder{}, nil)

	res, err := eng.Search(ctx, "find error handler", DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "a", res.Results[0].Chunk.ChunkID)
	assert.Equal(t, 0, res.PerLayerCounts["vector"])
}

func TestSearchPaginates(t *testing.T) {
	ctx := t.Context()
	ms := newTestMetadata(t)
	for _, id := range []string{"a", "b", "c"} {
		seedChunk(t, ms, id, "repo1", "go", "error")
	}

	bm25 := &fakeBM25{results: []*store.BM25Result{
		{DocID: "a", Score: 3}, {DocID: "b", Score: 2}, {DocID: "c", Score: 1},
	}}
	eng := New(bm25, &fakeVector{}, ms, fakeEmbedder{}, nil)

	opts := DefaultOptions()
	opts.Pagination = Pagination{Offset: 0, Limit: 2}
	res, err := eng.Search(ctx, "q", opts)
	require.NoError(t, err)
	assert.Len(t, res.Results, 2)
	assert.Equal(t, 3, res.Total)
	assert.True(t, res.HasNext)
	assert.Equal(t, 2, res.NextOffset)
}

func TestSearchRepeatQueryWithoutCacheIsStable(t *testing.T) {
	ctx := t.Context()
	ms := newTestMetadata(t)
	seedChunk(t, ms, "a", "repo1", "go", "error")

	bm25 := &fakeBM25{results: []*store.BM25Result{{DocID: "a", Score: 5}}}
	eng := New(bm25, &fakeVector{}, ms, fakeEmbedder{}, nil)

	opts := DefaultOptions()
	_, err := eng.Search(ctx, "repeat me", opts)
	require.NoError(t, err)

	// nil cache means no caching occurs; verify the call is still stable/idempotent.
	res2, err := eng.Search(ctx, "repeat me", opts)
	require.NoError(t, err)
	assert.False(t, res2.CacheHit)
	assert.Len(t, res2.Results, 1)
}
