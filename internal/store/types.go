// Package store provides vector storage (HNSW), lexical search (SQLite
// FTS5), and the relational persistence contract (§6.2) for chunks,
// nodes, edges, and computed metrics.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/giak/mnemolite/internal/chunk"
	"github.com/giak/mnemolite/internal/graph"
)

// State keys for the key-value runtime state table.
const (
	// StateKeyIndexDimension stores the embedding dimension used for the index
	StateKeyIndexDimension = "index_embedding_dimension"
	// StateKeyIndexModel stores the embedding model name used for the index
	StateKeyIndexModel = "index_embedding_model"
)

// Checkpoint state keys for resumable indexing.
const (
	StateKeyCheckpointStage         = "checkpoint_stage"
	StateKeyCheckpointTotal         = "checkpoint_total"
	StateKeyCheckpointEmbedded      = "checkpoint_embedded"
	StateKeyCheckpointTimestamp     = "checkpoint_timestamp"
	StateKeyCheckpointEmbedderModel = "checkpoint_embedder_model"
)

// CurrentSchemaVersion is the current database schema version.
const CurrentSchemaVersion = 3

// MetadataStore persists the §6.2 persistence contract: chunks, nodes,
// edges, computed_metrics, plus runtime state and resumable-indexing
// checkpoints. It also satisfies graph.Store so the Graph Constructor
// writes through the same backend.
type MetadataStore interface {
	graph.Store

	// Chunk operations. ReplaceChunksByFile is the S7 atomic replace:
	// delete and insert happen in one transaction, so a crash mid-write
	// never leaves a file's chunk set partially replaced.
	SaveChunks(ctx context.Context, chunks []*chunk.Chunk) error
	ReplaceChunksByFile(ctx context.Context, repository, filePath string, chunks []*chunk.Chunk) error
	GetChunk(ctx context.Context, id string) (*chunk.Chunk, error)
	GetChunks(ctx context.Context, ids []string) ([]*chunk.Chunk, error)
	GetChunksByFile(ctx context.Context, repository, filePath string) ([]*chunk.Chunk, error)
	GetChunksByRepository(ctx context.Context, repository string) ([]*chunk.Chunk, error)
	DeleteChunksByFile(ctx context.Context, repository, filePath string) error
	DeleteChunksByRepository(ctx context.Context, repository string) error

	// Graph read access, needed by repository_stats and by the Graph
	// Constructor's repository-scoped delete.
	DeleteNodesByRepository(ctx context.Context, repository string) error
	DeleteEdgesByRepository(ctx context.Context, repository string) error
	DeleteComputedMetricsByRepository(ctx context.Context, repository string) error
	RepositoryStats(ctx context.Context, repository string) (RepositoryStats, error)

	// State operations (key-value store for runtime state).
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	// Checkpoint operations (for resumable indexing).
	SaveIndexCheckpoint(ctx context.Context, stage string, total, embeddedCount int, embedderModel string) error
	LoadIndexCheckpoint(ctx context.Context) (*IndexCheckpoint, error)
	ClearIndexCheckpoint(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryStats answers the 6.1 repository_stats operation.
type RepositoryStats struct {
	Nodes         int
	Edges         int
	Languages     []string
	LastIndexedAt time.Time
	TotalChunks   int
}

// IndexCheckpoint represents the saved state of an indexing operation for resume.
type IndexCheckpoint struct {
	Stage         string // "scanning", "chunking", "embedding", "indexing", "complete"
	Total         int
	EmbeddedCount int
	Timestamp     time.Time
	EmbedderModel string
}

// Document represents a document to be indexed in BM25.
type Document struct {
	ID      string // Chunk ID
	Content string // Text content
}

// BM25Result represents a single BM25 search result.
type BM25Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// IndexStats provides statistics about the BM25 index.
type IndexStats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// BM25Index provides keyword search using BM25 algorithm.
type BM25Index interface {
	Index(ctx context.Context, docs []*Document) error
	Search(ctx context.Context, query string, limit int) ([]*BM25Result, error)
	Delete(ctx context.Context, docIDs []string) error
	AllIDs() ([]string, error)
	Stats() *IndexStats
	Save(path string) error
	Load(path string) error
	Close() error
}

// BM25Config configures the BM25 index.
type BM25Config struct {
	K1             float64
	B              float64
	StopWords      []string
	MinTokenLength int
}

// DefaultBM25Config returns default BM25 configuration.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		K1:             1.2,
		B:              0.75,
		StopWords:      DefaultCodeStopWords,
		MinTokenLength: 2,
	}
}

// DefaultCodeStopWords contains programming keywords to filter out.
var DefaultCodeStopWords = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while",
	"data", "result", "value", "item", "key", "err", "ctx", "tmp",
}

// VectorResult represents a single vector search result.
type VectorResult struct {
	ID       string  // Chunk ID
	Distance float32 // Lower is more similar (0-2 for cosine)
	Score    float32 // Normalized similarity (0-1)
}

// VectorStoreConfig configures the vector store.
type VectorStoreConfig struct {
	Dimensions     int
	Quantization   string // "f32", "f16", "i8" (default: "f16")
	Metric         string // "cos", "l2" (default: "cos")
	M              int    // HNSW max connections per layer (default: 32)
	EfConstruction int    // HNSW build-time search width (default: 128)
	EfSearch       int    // HNSW query-time search width (default: 64)
}

// DefaultVectorStoreConfig returns sensible defaults for vector store.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions:     dimensions,
		Quantization:   "f16",
		Metric:         "cos",
		M:              32,
		EfConstruction: 128,
		EfSearch:       64,
	}
}

// VectorStore provides semantic search using the HNSW algorithm. One
// instance covers one repository's ANN index, per §6.2's "within a
// repository" scoping.
type VectorStore interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	AllIDs() []string
	Contains(id string) bool
	Count() int
	Save(path string) error
	Load(path string) error
	Close() error
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'mnemolite reindex --force')", e.Expected, e.Got)
}
