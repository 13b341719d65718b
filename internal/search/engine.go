package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/giak/mnemolite/internal/cachel2"
	"github.com/giak/mnemolite/internal/chunk"
	"github.com/giak/mnemolite/internal/embedclient"
	"github.com/giak/mnemolite/internal/fingerprint"
	"github.com/giak/mnemolite/internal/store"
)

// searchCacheTTL is the §6.1 TTL for cached search result pages.
const searchCacheTTL = 30 * time.Second

const candidateFanOut = 100 // candidates pulled per layer before filtering/fusion

// Engine fans out a query to the lexical (BM25) and vector (ANN) indices,
// fuses the two candidate lists with reciprocal-rank fusion, and serves
// repeated identical queries from an L2-only cache.
type Engine struct {
	bm25     store.BM25Index
	vector   store.VectorStore
	metadata store.MetadataStore
	embedder embedclient.Embedder
	cache    *cachel2.Cache
	fusion   *RRFFusion

	sf singleflight.Group
}

// New builds a search Engine over the given indices. cache may be nil to
// disable result caching.
func New(bm25 store.BM25Index, vector store.VectorStore, metadata store.MetadataStore, embedder embedclient.Embedder, cache *cachel2.Cache) *Engine {
	return &Engine{
		bm25:     bm25,
		vector:   vector,
		metadata: metadata,
		embedder: embedder,
		cache:    cache,
		fusion:   NewRRFFusion(),
	}
}

// cacheKeyPayload is the canonical form fingerprinted into the search
// cache key. Field order is fixed so identical queries always hash the
// same regardless of how the caller constructed Options.
type cacheKeyPayload struct {
	Query      string  `json:"query"`
	Filters    Filters `json:"filters"`
	Weights    Weights `json:"weights"`
	Lexical    bool    `json:"lexical"`
	Vector     bool    `json:"vector"`
	Offset     int     `json:"offset"`
	Limit      int     `json:"limit"`
}

func (e *Engine) cacheKey(query string, opts Options) (string, error) {
	payload := cacheKeyPayload{
		Query:   query,
		Filters: opts.Filters,
		Weights: opts.Weights,
		Lexical: opts.EnableLexical,
		Vector:  opts.EnableVector,
		Offset:  opts.Pagination.Offset,
		Limit:   opts.Pagination.Limit,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal cache key payload: %w", err)
	}
	return "search:" + fingerprint.HashString(string(b)).String(), nil
}

// Search executes a hybrid query per §4.9 and returns a paginated,
// fused result set.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*PagedResults, error) {
	start := time.Now()
	if opts.Pagination.Limit <= 0 {
		opts.Pagination.Limit = 10
	}

	key, err := e.cacheKey(query, opts)
	if err != nil {
		return nil, err
	}

	if e.cache != nil && opts.Flags.Cache {
		if raw, ok := e.cache.Get(ctx, key); ok {
			var cached PagedResults
			if err := json.Unmarshal(raw, &cached); err == nil {
				cached.CacheHit = true
				cached.LatencySeconds = time.Since(start).Seconds()
				return &cached, nil
			}
		}
	}

	v, err, _ := e.sf.Do(key, func() (interface{}, error) {
		return e.execute(ctx, query, opts)
	})
	if err != nil {
		return nil, err
	}
	results := v.(*PagedResults)
	results.LatencySeconds = time.Since(start).Seconds()

	if e.cache != nil && opts.Flags.Cache {
		if raw, err := json.Marshal(results); err == nil {
			e.cache.Set(ctx, key, raw, searchCacheTTL)
		}
	}

	return results, nil
}

func (e *Engine) execute(ctx context.Context, query string, opts Options) (*PagedResults, error) {
	var bm25Results []*store.BM25Result
	var vecResults []*store.VectorResult

	g, gctx := errgroup.WithContext(ctx)

	if opts.EnableLexical {
		g.Go(func() error {
			res, err := e.bm25.Search(gctx, query, candidateFanOut)
			if err != nil {
				return fmt.Errorf("lexical search: %w", err)
			}
			bm25Results = res
			return nil
		})
	}

	if opts.EnableVector {
		g.Go(func() error {
			vec, err := e.embedder.Embed(gctx, query)
			if err != nil {
				slog.Warn("search: embedding failed, degrading to lexical-only", "error", err)
				return nil
			}
			res, err := e.vector.Search(gctx, vec, candidateFanOut)
			if err != nil {
				slog.Warn("search: vector search failed, degrading to lexical-only", "error", err)
				return nil
			}
			vecResults = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	bm25Results, err := e.applyFilters(ctx, bm25Results, opts.Filters)
	if err != nil {
		return nil, err
	}
	vecResults, err = e.applyVectorFilters(ctx, vecResults, opts.Filters)
	if err != nil {
		return nil, err
	}

	fused := e.fusion.Fuse(bm25Results, vecResults, opts.Weights)

	total := len(fused)
	offset := opts.Pagination.Offset
	limit := opts.Pagination.Limit
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := fused[offset:end]

	results := make([]Result, 0, len(page))
	for _, f := range page {
		c, err := e.metadata.GetChunk(ctx, f.ChunkID)
		if err != nil || c == nil {
			continue
		}
		results = append(results, Result{
			Chunk:        c,
			Score:        f.RRFScore,
			BM25Score:    f.BM25Score,
			VecScore:     f.VecScore,
			BM25Rank:     f.BM25Rank,
			VecRank:      f.VecRank,
			InBothLists:  f.InBothLists,
			MatchedTerms: f.MatchedTerms,
		})
	}

	return &PagedResults{
		Results:    results,
		Total:      total,
		HasNext:    end < total,
		NextOffset: end,
		PerLayerCounts: map[string]int{
			"lexical": len(bm25Results),
			"vector":  len(vecResults),
		},
	}, nil
}

// applyFilters drops BM25 candidates whose chunk doesn't satisfy the
// filter set. Filtering is post-hoc: the indices themselves are
// filter-unaware, per §4.9.
func (e *Engine) applyFilters(ctx context.Context, in []*store.BM25Result, f Filters) ([]*store.BM25Result, error) {
	if !f.hasAny() {
		return in, nil
	}
	out := make([]*store.BM25Result, 0, len(in))
	for _, r := range in {
		c, err := e.metadata.GetChunk(ctx, r.DocID)
		if err != nil {
			return nil, fmt.Errorf("lookup chunk %s: %w", r.DocID, err)
		}
		if c == nil || !f.matches(c) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (e *Engine) applyVectorFilters(ctx context.Context, in []*store.VectorResult, f Filters) ([]*store.VectorResult, error) {
	if !f.hasAny() {
		return in, nil
	}
	out := make([]*store.VectorResult, 0, len(in))
	for _, r := range in {
		c, err := e.metadata.GetChunk(ctx, r.ID)
		if err != nil {
			return nil, fmt.Errorf("lookup chunk %s: %w", r.ID, err)
		}
		if c == nil || !f.matches(c) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f Filters) hasAny() bool {
	return f.Language != "" || f.Kind != "" || f.Repository != "" || f.FilePathGlob != "" ||
		f.ReturnType != "" || f.ParamType != ""
}

func (f Filters) matches(c *chunk.Chunk) bool {
	if f.Language != "" && !strings.EqualFold(c.Language, f.Language) {
		return false
	}
	if f.Kind != "" && string(c.Kind) != f.Kind {
		return false
	}
	if f.Repository != "" && c.Repository != f.Repository {
		return false
	}
	if f.FilePathGlob != "" {
		ok, err := filepath.Match(f.FilePathGlob, c.FilePath)
		if err != nil || !ok {
			return false
		}
	}
	if f.ReturnType != "" {
		rt, _ := c.Metadata["return_type"].(string)
		if !strings.Contains(rt, f.ReturnType) {
			return false
		}
	}
	if f.ParamType != "" {
		if !paramTypesContain(c.Metadata["param_types"], f.ParamType) {
			return false
		}
	}
	return true
}

// paramTypesContain checks whether any value of metadata's param_types map
// (param name -> type name) contains needle as a substring. The map comes
// back as map[string]string from a freshly built chunk.Metadata, or
// map[string]any after a JSON round-trip through the store.
func paramTypesContain(v any, needle string) bool {
	switch pts := v.(type) {
	case map[string]string:
		for _, p := range pts {
			if strings.Contains(p, needle) {
				return true
			}
		}
	case map[string]any:
		for _, p := range pts {
			if s, ok := p.(string); ok && strings.Contains(s, needle) {
				return true
			}
		}
	}
	return false
}
