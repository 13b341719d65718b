// Package search implements the Search Engine (§4.9): lexical+vector
// candidate fan-out, reciprocal-rank fusion, filters, and an L2-only
// result cache keyed by a canonical query fingerprint.
package search

import (
	"github.com/giak/mnemolite/internal/chunk"
)

// Weights configures the relative importance of lexical vs vector
// search in the RRF fusion. Field names (BM25/Semantic) mirror the
// teacher's RRFFusion; spec.md's lexical_weight/vector_weight map onto
// BM25/Semantic respectively.
type Weights struct {
	BM25     float64
	Semantic float64
}

// DefaultWeights is spec.md §4.9's default (lexical_weight=0.4, vector_weight=0.6).
func DefaultWeights() Weights {
	return Weights{BM25: 0.4, Semantic: 0.6}
}

// Filters restricts candidates by the enumerated fields in §4.9.
type Filters struct {
	Language        string
	Kind            string
	Repository      string
	FilePathGlob    string // glob against chunk.FilePath
	ReturnType      string // substring match against metadata.return_type
	ParamType       string // substring match against any metadata.param_types value
}

// Pagination bounds a result page.
type Pagination struct {
	Offset int
	Limit  int
}

// Flags carries per-call behavior toggles (§6.1 search's `flags`).
type Flags struct {
	Cache bool // default true
}

// EnableLexical/EnableVector toggle which candidate lists are produced.
type Options struct {
	Filters      Filters
	Pagination   Pagination
	Weights      Weights
	EnableLexical bool
	EnableVector  bool
	Flags         Flags
}

// DefaultOptions returns the spec's defaults: both lists enabled, default
// weights, first page of 10, cache on.
func DefaultOptions() Options {
	return Options{
		Weights:       DefaultWeights(),
		Pagination:    Pagination{Offset: 0, Limit: 10},
		EnableLexical: true,
		EnableVector:  true,
		Flags:         Flags{Cache: true},
	}
}

// Result is one ranked search hit.
type Result struct {
	Chunk        *chunk.Chunk
	Score        float64
	BM25Score    float64
	VecScore     float64
	BM25Rank     int
	VecRank      int
	InBothLists  bool
	MatchedTerms []string
}

// PagedResults is the §6.1 search response shape.
type PagedResults struct {
	Results        []Result
	Total          int
	HasNext        bool
	NextOffset     int
	LatencySeconds float64
	CacheHit       bool
	PerLayerCounts map[string]int
}
