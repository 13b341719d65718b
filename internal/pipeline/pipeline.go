package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/giak/mnemolite/internal/cascade"
	"github.com/giak/mnemolite/internal/chunk"
	"github.com/giak/mnemolite/internal/embedclient"
	"github.com/giak/mnemolite/internal/fingerprint"
	"github.com/giak/mnemolite/internal/graph"
	"github.com/giak/mnemolite/internal/metadata"
	"github.com/giak/mnemolite/internal/oracle"
	"github.com/giak/mnemolite/internal/scanner"
	"github.com/giak/mnemolite/internal/store"
)

// Dependencies are the collaborators the pipeline drives, one instance
// shared across files in a worker and never mutated concurrently by the
// pipeline itself — callers (the coordinator) own the one-handle-per-worker
// discipline of §4.10.
type Dependencies struct {
	Cascade         *cascade.Cache
	Metadata        store.MetadataStore
	BM25            store.BM25Index
	Vector          store.VectorStore
	Embedder        embedclient.Embedder
	CodeChunker     chunk.Chunker
	MarkdownChunker chunk.Chunker
	MetadataReg     *metadata.Registry
	Oracle          oracle.Oracle // may be oracle.NoOp{}
	Parser          *chunk.Parser
	Log             *slog.Logger
}

// Pipeline runs the §4.6 per-file state machine against one set of
// Dependencies.
type Pipeline struct {
	deps Dependencies
	log  *slog.Logger
}

// New builds a Pipeline. Oracle, MetadataReg and Parser default to
// sensible zero-effort values if left nil/empty.
func New(deps Dependencies) *Pipeline {
	if deps.Oracle == nil {
		deps.Oracle = oracle.NoOp{}
	}
	if deps.MetadataReg == nil {
		deps.MetadataReg = metadata.NewRegistry()
	}
	if deps.Parser == nil {
		deps.Parser = chunk.NewParser()
	}
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{deps: deps, log: log}
}

// IndexFile runs S0→S8 for one file. sourceBytes is the full file
// content; repository/filePath identify it for caching and persistence.
func (p *Pipeline) IndexFile(ctx context.Context, repository, filePath string, sourceBytes []byte) *FileResult {
	start := time.Now()
	result := &FileResult{Repository: repository, FilePath: filePath}

	// S0: invalidate — any in-flight re-index must never serve stale chunks.
	p.deps.Cascade.Invalidate(ctx, filePath)

	// S1: detect language.
	language := scanner.DetectLanguage(filePath)
	if language == "" {
		result.Status = StatusSkipped
		result.Reason = ReasonUnknownLanguage
		result.Duration = time.Since(start)
		return result
	}

	// S2: cascade short-circuit. A hit returns cached chunks as-is; they
	// are not re-persisted because they already exist.
	if cached, ok := p.deps.Cascade.GetChunks(ctx, filePath, sourceBytes); ok {
		result.Status = StatusIndexed
		result.ChunksCount = len(cached)
		result.CacheHit = true
		result.Duration = time.Since(start)
		return result
	}

	contentType := scanner.DetectContentType(language)
	chunker := p.deps.CodeChunker
	if contentType == scanner.ContentTypeMarkdown {
		chunker = p.deps.MarkdownChunker
	}

	// S3+S4: parse and chunk. The teacher's Chunker already fuses parse
	// (tree-sitter) and unit segmentation into one call; a parse error
	// surfaces as a chunking error here, matching §4.6's "no partial
	// persist on parse error" rule.
	parseCtx, cancel := context.WithTimeout(ctx, ParseTimeout)
	chunks, err := chunker.Chunk(parseCtx, &chunk.FileInput{
		Repository: repository,
		Path:       filePath,
		Content:    sourceBytes,
		Language:   language,
	})
	cancel()
	if err != nil {
		result.Status = StatusFailed
		result.Reason = ReasonChunkingError
		result.Err = fmt.Errorf("chunk %s: %w", filePath, err)
		result.Duration = time.Since(start)
		return result
	}

	// S5: metadata extraction per chunk, with an optional oracle enrichment.
	extractor := p.deps.MetadataReg.For(language)
	for _, c := range chunks {
		p.extractMetadata(ctx, c, language, extractor)
	}

	// S6: embeddings (TEXT + CODE domains). Failure is per-chunk non-fatal.
	embedded := p.embedChunks(ctx, chunks)

	// S7: persist atomically for this file. Fetch prior chunk IDs first so
	// the BM25/vector indices can be kept in sync with the replacement.
	existing, err := p.deps.Metadata.GetChunksByFile(ctx, repository, filePath)
	if err != nil {
		result.Status = StatusFailed
		result.Reason = ReasonPersistError
		result.Err = fmt.Errorf("load existing chunks for %s: %w", filePath, err)
		result.Duration = time.Since(start)
		return result
	}
	oldIDs := make([]string, 0, len(existing))
	for _, c := range existing {
		oldIDs = append(oldIDs, c.ChunkID)
	}

	persistCtx, cancel := context.WithTimeout(ctx, PersistTimeout)
	err = p.persist(persistCtx, repository, filePath, chunks, oldIDs)
	cancel()
	if err != nil {
		result.Status = StatusFailed
		result.Reason = ReasonPersistError
		result.Err = fmt.Errorf("persist %s: %w", filePath, err)
		result.Duration = time.Since(start)
		return result
	}

	// S8: write-through cache update.
	valueChunks := make([]chunk.Chunk, len(chunks))
	for i, c := range chunks {
		valueChunks[i] = *c
	}
	p.deps.Cascade.PutChunks(ctx, filePath, sourceBytes, valueChunks)

	result.Status = StatusIndexed
	result.ChunksCount = len(chunks)
	result.EmbeddedCount = embedded
	if embedded < len(chunks) {
		result.Reason = ReasonEmbeddingError
	}
	result.Duration = time.Since(start)
	return result
}

func (p *Pipeline) extractMetadata(ctx context.Context, c *chunk.Chunk, language string, extractor metadata.Extractor) {
	metaCtx, cancel := context.WithTimeout(ctx, MetadataTimeout)
	defer cancel()

	source := []byte(c.SourceCode)
	tree, err := p.deps.Parser.Parse(metaCtx, source, language)
	var m metadata.Metadata
	if err != nil || tree == nil {
		p.log.Warn("metadata parse failed, using fallback extraction", "file", c.FilePath, "chunk", c.QualifiedName, "err", err)
		m = metadata.Metadata{Imports: []string{}, Calls: []string{}}
	} else {
		m = extractor.Extract(source, tree.Root, tree, language, nil)
	}

	m = metadata.WithOracle(m, p.deps.Oracle, c.FilePath, c.StartLine)
	m.ContentHash = fingerprint.Hash(source).String()

	c.Metadata = m.AsMap()
	c.ContentHash = m.ContentHash
	c.DocString = m.DocString
}

// embedChunks generates TEXT and CODE domain embeddings for each chunk,
// returning the count that received at least a TEXT embedding. A failure
// on one chunk never aborts the batch.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []*chunk.Chunk) int {
	embedded := 0
	for _, c := range chunks {
		embedCtx, cancel := context.WithTimeout(ctx, EmbedTimeout)
		textVec, err := p.deps.Embedder.Embed(embedCtx, textEmbeddingInput(c))
		if err != nil {
			cancel()
			p.log.Warn("embedding failed, persisting without vector", "file", c.FilePath, "chunk", c.QualifiedName, "err", err)
			continue
		}
		c.EmbeddingText = textVec

		codeVec, err := p.deps.Embedder.Embed(embedCtx, c.SourceCode)
		cancel()
		if err == nil {
			c.EmbeddingCode = codeVec
		}
		embedded++
	}
	return embedded
}

// textEmbeddingInput builds the TEXT-domain embedding input: the docstring
// plus the qualified name when a docstring exists, else the qualified name
// plus the source.
func textEmbeddingInput(c *chunk.Chunk) string {
	if c.DocString != "" {
		return c.DocString + "\n" + c.QualifiedName
	}
	return c.QualifiedName + "\n" + c.SourceCode
}

func (p *Pipeline) persist(ctx context.Context, repository, filePath string, chunks []*chunk.Chunk, oldIDs []string) error {
	if err := p.deps.Metadata.ReplaceChunksByFile(ctx, repository, filePath, chunks); err != nil {
		return err
	}

	if len(oldIDs) > 0 {
		if err := p.deps.BM25.Delete(ctx, oldIDs); err != nil {
			p.log.Warn("bm25 delete of stale chunks failed", "file", filePath, "err", err)
		}
		if err := p.deps.Vector.Delete(ctx, oldIDs); err != nil {
			p.log.Warn("vector delete of stale chunks failed", "file", filePath, "err", err)
		}
	}

	docs := make([]*store.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = &store.Document{ID: c.ChunkID, Content: c.SourceCode}
	}
	if len(docs) > 0 {
		if err := p.deps.BM25.Index(ctx, docs); err != nil {
			return fmt.Errorf("bm25 index: %w", err)
		}
	}

	var vecIDs []string
	var vecs [][]float32
	for _, c := range chunks {
		if len(c.EmbeddingCode) > 0 {
			vecIDs = append(vecIDs, c.ChunkID)
			vecs = append(vecs, c.EmbeddingCode)
		}
	}
	if len(vecIDs) > 0 {
		if err := p.deps.Vector.Add(ctx, vecIDs, vecs); err != nil {
			return fmt.Errorf("vector add: %w", err)
		}
	}
	return nil
}

// BuildGraph runs the §4.7 Graph Constructor pass for a repository, once
// every file's pipeline pass has committed.
func (p *Pipeline) BuildGraph(ctx context.Context, repository string) (graph.BuildResult, error) {
	chunks, err := p.deps.Metadata.GetChunksByRepository(ctx, repository)
	if err != nil {
		return graph.BuildResult{}, fmt.Errorf("load chunks for %s: %w", repository, err)
	}

	refs := make([]graph.ChunkRef, 0, len(chunks))
	for _, c := range chunks {
		refs = append(refs, graph.ChunkRef{
			ChunkID:       c.ChunkID,
			Repository:    c.Repository,
			QualifiedName: c.QualifiedName,
			Name:          c.Name,
			NodeType:      graph.NodeType(c.Kind),
			Imports:       stringSliceFromMetadata(c.Metadata["imports"]),
			Calls:         stringSliceFromMetadata(c.Metadata["calls"]),
		})
	}

	constructor := graph.New(p.deps.Metadata, p.log)
	return constructor.Build(repository, refs), nil
}

// stringSliceFromMetadata coerces a chunk.Metadata value that round-tripped
// through JSON (becoming []any) back into []string.
func stringSliceFromMetadata(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
