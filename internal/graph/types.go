// Package graph implements the Graph Constructor (§4.7): builds a
// repository-scoped symbol table from chunks, resolves import/call
// references against it, and upserts Node/Edge/ComputedMetrics rows.
// Runs once per repository, after every per-file pipeline pass has
// committed, as a single writer over nodes and edges.
package graph

import "time"

// NodeType mirrors the recognized §3 node_type enumeration.
type NodeType string

const (
	NodeTypeClass     NodeType = "class"
	NodeTypeFunction  NodeType = "function"
	NodeTypeMethod    NodeType = "method"
	NodeTypeInterface NodeType = "interface"
	NodeTypeEnum      NodeType = "enum"
	NodeTypeModule    NodeType = "module"
)

// Node is exactly one resolvable symbol in a repository.
type Node struct {
	NodeID        string
	NodeType      NodeType
	QualifiedName string
	Repository    string
	ChunkID       string
	Properties    map[string]any
	CreatedAt     time.Time
}

// EdgeType enumerates the recognized relationship kinds.
type EdgeType string

const (
	EdgeTypeCalls     EdgeType = "calls"
	EdgeTypeImports   EdgeType = "imports"
	EdgeTypeReExports EdgeType = "re_exports"
)

// Edge is a directed relationship between two nodes. (source, target,
// edge_type) is unique; reinsertion is a no-op.
type Edge struct {
	EdgeID       string
	SourceNodeID string
	TargetNodeID string
	EdgeType     EdgeType
	Properties   map[string]any
	CreatedAt    time.Time
}

// ComputedMetrics is upserted, never plain-updated (§4.7 step 5) — the
// row must exist after the first write even if none existed before.
type ComputedMetrics struct {
	NodeID     string
	ChunkID    string
	Repository string
	Coupling   *float64
	PageRank   *float64
	UpdatedAt  time.Time
}

// ChunkRef is the minimal view of a chunk the constructor needs: enough
// to build the symbol table and resolve imports/calls without importing
// the full chunk.Chunk shape (keeps this package usable against any
// producer, per §1's "language parsers... are black-box producers").
type ChunkRef struct {
	ChunkID       string
	Repository    string
	QualifiedName string
	Name          string
	NodeType      NodeType
	Imports       []string
	Calls         []string
}

// Store is the subset of the Persistence Contract the constructor needs.
// UpsertEdge must be INSERT...ON CONFLICT DO NOTHING; UpsertNode and
// UpsertComputedMetrics must be INSERT...ON CONFLICT DO UPDATE.
type Store interface {
	UpsertNode(n Node) error
	UpsertEdge(e Edge) error
	UpsertComputedMetrics(m ComputedMetrics) error
}
