package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/giak/mnemolite/internal/chunk"
	"github.com/giak/mnemolite/internal/graph"
)

// SQLiteStore implements MetadataStore (§6.2's persistence contract) over
// modernc.org/sqlite in WAL mode, mirroring the teacher's SQLiteBM25Index
// concurrency story (one writer, many readers, no CGO).
type SQLiteStore struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

var _ MetadataStore = (*SQLiteStore)(nil)
var _ graph.Store = (*SQLiteStore)(nil)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS chunks (
	chunk_id       TEXT PRIMARY KEY,
	repository     TEXT NOT NULL,
	file_path      TEXT NOT NULL,
	language       TEXT NOT NULL,
	kind           TEXT NOT NULL,
	name           TEXT NOT NULL,
	qualified_name TEXT NOT NULL,
	start_line     INTEGER NOT NULL,
	end_line       INTEGER NOT NULL,
	source_code    TEXT NOT NULL,
	embedding_text BLOB,
	embedding_code BLOB,
	metadata       TEXT NOT NULL DEFAULT '{}',
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_chunks_identity
	ON chunks(repository, file_path, qualified_name, kind);
CREATE INDEX IF NOT EXISTS idx_chunks_file
	ON chunks(repository, file_path);

CREATE TABLE IF NOT EXISTS nodes (
	node_id        TEXT PRIMARY KEY,
	repository     TEXT NOT NULL,
	qualified_name TEXT NOT NULL,
	node_type      TEXT NOT NULL,
	chunk_id       TEXT NOT NULL,
	properties     TEXT NOT NULL DEFAULT '{}',
	created_at     DATETIME NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_nodes_identity
	ON nodes(repository, qualified_name, node_type);

CREATE TABLE IF NOT EXISTS edges (
	edge_id        TEXT PRIMARY KEY,
	source_node_id TEXT NOT NULL,
	target_node_id TEXT NOT NULL,
	edge_type      TEXT NOT NULL,
	properties     TEXT NOT NULL DEFAULT '{}',
	created_at     DATETIME NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_edges_identity
	ON edges(source_node_id, target_node_id, edge_type);

CREATE TABLE IF NOT EXISTS computed_metrics (
	node_id    TEXT PRIMARY KEY,
	chunk_id   TEXT NOT NULL,
	repository TEXT NOT NULL,
	coupling   REAL,
	pagerank   REAL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS kv_state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// NewSQLiteStore opens (creating if needed) a SQLite-backed MetadataStore.
// An empty path opens an in-memory database, for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create directory %s: %w", dir, err)
			}
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path != "" {
		db.SetMaxOpenConns(1) // WAL with a single writer connection avoids SQLITE_BUSY
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// --- chunk.Chunk marshaling -------------------------------------------------

func marshalFloats(v []float32) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalFloats(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var out []float32
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func scanChunk(row interface {
	Scan(dest ...any) error
}) (*chunk.Chunk, error) {
	var c chunk.Chunk
	var kind, metadataJSON string
	var embText, embCode []byte

	if err := row.Scan(
		&c.ChunkID, &c.Repository, &c.FilePath, &c.Language, &kind,
		&c.Name, &c.QualifiedName, &c.StartLine, &c.EndLine, &c.SourceCode,
		&embText, &embCode, &metadataJSON, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}

	c.Kind = chunk.Kind(kind)

	var err error
	if c.EmbeddingText, err = unmarshalFloats(embText); err != nil {
		return nil, fmt.Errorf("unmarshal embedding_text: %w", err)
	}
	if c.EmbeddingCode, err = unmarshalFloats(embCode); err != nil {
		return nil, fmt.Errorf("unmarshal embedding_code: %w", err)
	}

	c.Metadata = map[string]any{}
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &c.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if hash, ok := c.Metadata["content_hash"].(string); ok {
		c.ContentHash = hash
	}
	if doc, ok := c.Metadata["docstring"].(string); ok {
		c.DocString = doc
	}

	return &c, nil
}

// SaveChunks inserts chunks, replacing any existing row sharing the same
// identity (repository, file_path, qualified_name, kind). Use
// ReplaceChunksByFile instead when logically replacing a whole file's
// chunk set (§4.6 step S7), since SaveChunks alone does not delete chunks
// that no longer exist in the new set.
func (s *SQLiteStore) SaveChunks(ctx context.Context, chunks []*chunk.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertChunksTx(ctx, tx, chunks); err != nil {
		return err
	}

	return tx.Commit()
}

// ReplaceChunksByFile is the S7 atomic chunk-set replacement: the file's
// existing chunks are deleted and the new set inserted in one
// transaction, so a crash between the two never leaves the file with a
// stale or partial chunk set.
func (s *SQLiteStore) ReplaceChunksByFile(ctx context.Context, repository, filePath string, chunks []*chunk.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE repository = ? AND file_path = ?", repository, filePath); err != nil {
		return fmt.Errorf("delete chunks for %s: %w", filePath, err)
	}

	if len(chunks) > 0 {
		if err := insertChunksTx(ctx, tx, chunks); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertChunksTx(ctx context.Context, tx *sql.Tx, chunks []*chunk.Chunk) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (
			chunk_id, repository, file_path, language, kind, name, qualified_name,
			start_line, end_line, source_code, embedding_text, embedding_code,
			metadata, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(repository, file_path, qualified_name, kind) DO UPDATE SET
			chunk_id = excluded.chunk_id,
			language = excluded.language,
			name = excluded.name,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			source_code = excluded.source_code,
			embedding_text = excluded.embedding_text,
			embedding_code = excluded.embedding_code,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, c := range chunks {
		if c.Metadata == nil {
			c.Metadata = map[string]any{}
		}
		if c.ContentHash != "" {
			c.Metadata["content_hash"] = c.ContentHash
		}
		metaJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", c.ChunkID, err)
		}
		embText, err := marshalFloats(c.EmbeddingText)
		if err != nil {
			return fmt.Errorf("marshal embedding_text for %s: %w", c.ChunkID, err)
		}
		embCode, err := marshalFloats(c.EmbeddingCode)
		if err != nil {
			return fmt.Errorf("marshal embedding_code for %s: %w", c.ChunkID, err)
		}
		created := c.CreatedAt
		if created.IsZero() {
			created = now
		}
		updated := c.UpdatedAt
		if updated.IsZero() {
			updated = now
		}

		if _, err := stmt.ExecContext(ctx,
			c.ChunkID, c.Repository, c.FilePath, c.Language, string(c.Kind), c.Name, c.QualifiedName,
			c.StartLine, c.EndLine, c.SourceCode, embText, embCode,
			string(metaJSON), created, updated,
		); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ChunkID, err)
		}
	}

	return nil
}

const chunkColumns = `chunk_id, repository, file_path, language, kind, name, qualified_name,
	start_line, end_line, source_code, embedding_text, embedding_code, metadata, created_at, updated_at`

func (s *SQLiteStore) GetChunk(ctx context.Context, id string) (*chunk.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+chunkColumns+" FROM chunks WHERE chunk_id = ?", id)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (s *SQLiteStore) GetChunks(ctx context.Context, ids []string) ([]*chunk.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	args := make([]any, len(ids))
	placeholders := ""
	for i, id := range ids {
		args[i] = id
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
	}

	rows, err := s.db.QueryContext(ctx, "SELECT "+chunkColumns+" FROM chunks WHERE chunk_id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var out []*chunk.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetChunksByFile(ctx context.Context, repository, filePath string) ([]*chunk.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+chunkColumns+" FROM chunks WHERE repository = ? AND file_path = ?", repository, filePath)
	if err != nil {
		return nil, fmt.Errorf("query chunks by file: %w", err)
	}
	defer rows.Close()

	var out []*chunk.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetChunksByRepository(ctx context.Context, repository string) ([]*chunk.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+chunkColumns+" FROM chunks WHERE repository = ?", repository)
	if err != nil {
		return nil, fmt.Errorf("query chunks by repository: %w", err)
	}
	defer rows.Close()

	var out []*chunk.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteChunksByFile(ctx context.Context, repository, filePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE repository = ? AND file_path = ?", repository, filePath)
	return err
}

func (s *SQLiteStore) DeleteChunksByRepository(ctx context.Context, repository string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE repository = ?", repository)
	return err
}

// --- graph.Store -------------------------------------------------------

func propsJSON(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *SQLiteStore) UpsertNode(n graph.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	props, err := propsJSON(n.Properties)
	if err != nil {
		return fmt.Errorf("marshal node properties: %w", err)
	}
	created := n.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	_, err = s.db.Exec(`
		INSERT INTO nodes (node_id, repository, qualified_name, node_type, chunk_id, properties, created_at)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(repository, qualified_name, node_type) DO UPDATE SET
			node_id = excluded.node_id,
			chunk_id = excluded.chunk_id,
			properties = excluded.properties
	`, n.NodeID, n.Repository, n.QualifiedName, string(n.NodeType), n.ChunkID, props, created)
	return err
}

func (s *SQLiteStore) UpsertEdge(e graph.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	props, err := propsJSON(e.Properties)
	if err != nil {
		return fmt.Errorf("marshal edge properties: %w", err)
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	_, err = s.db.Exec(`
		INSERT INTO edges (edge_id, source_node_id, target_node_id, edge_type, properties, created_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(source_node_id, target_node_id, edge_type) DO NOTHING
	`, e.EdgeID, e.SourceNodeID, e.TargetNodeID, string(e.EdgeType), props, created)
	return err
}

func (s *SQLiteStore) UpsertComputedMetrics(m graph.ComputedMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO computed_metrics (node_id, chunk_id, repository, coupling, pagerank, updated_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(node_id) DO UPDATE SET
			chunk_id = excluded.chunk_id,
			repository = excluded.repository,
			coupling = excluded.coupling,
			pagerank = excluded.pagerank,
			updated_at = excluded.updated_at
	`, m.NodeID, m.ChunkID, m.Repository, m.Coupling, m.PageRank, time.Now().UTC())
	return err
}

func (s *SQLiteStore) DeleteNodesByRepository(ctx context.Context, repository string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM nodes WHERE repository = ?", repository)
	return err
}

func (s *SQLiteStore) DeleteEdgesByRepository(ctx context.Context, repository string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM edges WHERE source_node_id IN (SELECT node_id FROM nodes WHERE repository = ?)
		   OR target_node_id IN (SELECT node_id FROM nodes WHERE repository = ?)
	`, repository, repository)
	return err
}

func (s *SQLiteStore) DeleteComputedMetricsByRepository(ctx context.Context, repository string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM computed_metrics WHERE repository = ?", repository)
	return err
}

func (s *SQLiteStore) RepositoryStats(ctx context.Context, repository string) (RepositoryStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats RepositoryStats

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE repository = ?", repository).
		Scan(&stats.TotalChunks); err != nil {
		return stats, fmt.Errorf("count chunks: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM nodes WHERE repository = ?", repository).
		Scan(&stats.Nodes); err != nil {
		return stats, fmt.Errorf("count nodes: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM edges WHERE source_node_id IN (SELECT node_id FROM nodes WHERE repository = ?)
	`, repository).Scan(&stats.Edges); err != nil {
		return stats, fmt.Errorf("count edges: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT language FROM chunks WHERE repository = ?", repository)
	if err != nil {
		return stats, fmt.Errorf("query languages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var lang string
		if err := rows.Scan(&lang); err != nil {
			return stats, fmt.Errorf("scan language: %w", err)
		}
		stats.Languages = append(stats.Languages, lang)
	}

	var lastIndexed sql.NullTime
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(updated_at) FROM chunks WHERE repository = ?", repository).
		Scan(&lastIndexed); err != nil {
		return stats, fmt.Errorf("query last indexed: %w", err)
	}
	if lastIndexed.Valid {
		stats.LastIndexedAt = lastIndexed.Time
	}

	return stats, nil
}

// --- state & checkpoint -------------------------------------------------

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv_state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func (s *SQLiteStore) SaveIndexCheckpoint(ctx context.Context, stage string, total, embeddedCount int, embedderModel string) error {
	if err := s.SetState(ctx, StateKeyCheckpointStage, stage); err != nil {
		return err
	}
	if err := s.SetState(ctx, StateKeyCheckpointTotal, fmt.Sprintf("%d", total)); err != nil {
		return err
	}
	if err := s.SetState(ctx, StateKeyCheckpointEmbedded, fmt.Sprintf("%d", embeddedCount)); err != nil {
		return err
	}
	if err := s.SetState(ctx, StateKeyCheckpointEmbedderModel, embedderModel); err != nil {
		return err
	}
	return s.SetState(ctx, StateKeyCheckpointTimestamp, time.Now().UTC().Format(time.RFC3339))
}

func (s *SQLiteStore) LoadIndexCheckpoint(ctx context.Context) (*IndexCheckpoint, error) {
	stage, err := s.GetState(ctx, StateKeyCheckpointStage)
	if err != nil {
		return nil, err
	}
	if stage == "" {
		return nil, nil
	}

	cp := &IndexCheckpoint{Stage: stage}
	if v, err := s.GetState(ctx, StateKeyCheckpointTotal); err == nil {
		fmt.Sscanf(v, "%d", &cp.Total)
	}
	if v, err := s.GetState(ctx, StateKeyCheckpointEmbedded); err == nil {
		fmt.Sscanf(v, "%d", &cp.EmbeddedCount)
	}
	if v, err := s.GetState(ctx, StateKeyCheckpointEmbedderModel); err == nil {
		cp.EmbedderModel = v
	}
	if v, err := s.GetState(ctx, StateKeyCheckpointTimestamp); err == nil && v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			cp.Timestamp = t
		}
	}
	return cp, nil
}

func (s *SQLiteStore) ClearIndexCheckpoint(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_state WHERE key IN (?,?,?,?,?)`,
		StateKeyCheckpointStage, StateKeyCheckpointTotal, StateKeyCheckpointEmbedded,
		StateKeyCheckpointEmbedderModel, StateKeyCheckpointTimestamp)
	return err
}
