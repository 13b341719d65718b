package graph

import (
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/giak/mnemolite/internal/fingerprint"
)

// symbolEntry is one row of the per-repository symbol table.
type symbolEntry struct {
	nodeID   string
	nodeType NodeType
}

// BuildResult summarizes a single repository pass, per §4.7's closing
// invariants.
type BuildResult struct {
	NodesUpserted int
	EdgesInserted int
	Errors        int
}

// Constructor builds the graph for a repository from its chunks, once
// per repository, after every file's pipeline pass has committed.
type Constructor struct {
	store Store
	log   *slog.Logger
}

// New builds a Constructor writing through store.
func New(store Store, log *slog.Logger) *Constructor {
	if log == nil {
		log = slog.Default()
	}
	return &Constructor{store: store, log: log}
}

// Build runs the full §4.7 algorithm: symbol table, node upsert, edge
// derivation, dedup (left to the store's ON CONFLICT DO NOTHING), and
// ComputedMetrics upsert. A persistence error on any single edge is
// logged and does not abort the rest of the build.
func (c *Constructor) Build(repository string, chunks []ChunkRef) BuildResult {
	symbols := buildSymbolTable(repository, chunks)
	result := BuildResult{}

	touchedNodes := make(map[string]string) // qualifiedName -> chunkID, for ComputedMetrics

	for _, ch := range chunks {
		entry, ok := symbols[ch.QualifiedName]
		if !ok {
			continue
		}
		node := Node{
			NodeID:        entry.nodeID,
			NodeType:      ch.NodeType,
			QualifiedName: ch.QualifiedName,
			Repository:    repository,
			ChunkID:       ch.ChunkID,
		}
		if err := c.store.UpsertNode(node); err != nil {
			c.log.Warn("graph: node upsert failed", "qualified_name", ch.QualifiedName, "error", err)
			result.Errors++
			continue
		}
		result.NodesUpserted++
		touchedNodes[ch.QualifiedName] = ch.ChunkID

		for _, imp := range ch.Imports {
			if target, ok := resolve(imp, symbols); ok {
				edgeType := EdgeTypeImports
				if strings.HasSuffix(imp, ".*") {
					edgeType = EdgeTypeReExports
				}
				if c.insertEdge(entry.nodeID, target.nodeID, edgeType) {
					result.EdgesInserted++
				} else {
					result.Errors++
				}
			}
		}

		for _, call := range ch.Calls {
			name := call
			if idx := strings.LastIndex(call, "."); idx >= 0 {
				name = call[idx+1:]
			}
			if target, ok := resolve(call, symbols); ok {
				if c.insertEdge(entry.nodeID, target.nodeID, EdgeTypeCalls) {
					result.EdgesInserted++
				}
				continue
			}
			if target, ok := resolve(name, symbols); ok {
				if c.insertEdge(entry.nodeID, target.nodeID, EdgeTypeCalls) {
					result.EdgesInserted++
				}
			}
			// unresolved external reference: expected, silently ignored.
		}
	}

	for qname, chunkID := range touchedNodes {
		entry := symbols[qname]
		if err := c.store.UpsertComputedMetrics(ComputedMetrics{
			NodeID:     entry.nodeID,
			ChunkID:    chunkID,
			Repository: repository,
		}); err != nil {
			c.log.Warn("graph: computed_metrics upsert failed", "qualified_name", qname, "error", err)
			result.Errors++
		}
	}

	return result
}

func (c *Constructor) insertEdge(source, target string, edgeType EdgeType) bool {
	id := uuid.NewString()
	err := c.store.UpsertEdge(Edge{
		EdgeID:       id,
		SourceNodeID: source,
		TargetNodeID: target,
		EdgeType:     edgeType,
	})
	if err != nil {
		c.log.Warn("graph: edge upsert failed", "source", source, "target", target, "type", edgeType, "error", err)
		return false
	}
	return true
}

// buildSymbolTable assigns one symbol-table entry per chunk's
// qualified_name. The node_id is derived deterministically from
// (repository, qualified_name, node_type) rather than randomly generated,
// so that re-running Build against an unchanged symbol produces the same
// node_id every time: UpsertNode's ON CONFLICT(repository, qualified_name,
// node_type) then updates the existing row in place instead of rewriting
// its primary key, which would orphan every edge and computed_metrics row
// that referenced it. Duplicates within a repository are forbidden
// upstream (§3); the first chunk seen for a qualified_name wins here
// defensively.
func buildSymbolTable(repository string, chunks []ChunkRef) map[string]symbolEntry {
	table := make(map[string]symbolEntry, len(chunks))
	for _, ch := range chunks {
		if _, exists := table[ch.QualifiedName]; exists {
			continue
		}
		table[ch.QualifiedName] = symbolEntry{
			nodeID:   deriveNodeID(repository, ch.QualifiedName, ch.NodeType),
			nodeType: ch.NodeType,
		}
	}
	return table
}

// deriveNodeID derives a stable node identifier from its natural key so
// that rebuilding the graph for a repository is idempotent.
func deriveNodeID(repository, qualifiedName string, nodeType NodeType) string {
	key := fingerprint.Combine(repository, qualifiedName, string(nodeType))
	return uuid.NewSHA1(nodeUUIDNamespace, []byte(key)).String()
}

var nodeUUIDNamespace = uuid.MustParse("6d6e656d-6f6c-4974-6500-6e6f64654944")

// resolve tries an exact qualified_name match first. Failing that, it
// takes the symbol after the last "." in s and returns the longest
// qualified_name that ends in "."+symbol (or equals it). The module part
// of s is not compared, so a same-named symbol in any module can match.
func resolve(s string, symbols map[string]symbolEntry) (symbolEntry, bool) {
	if entry, ok := symbols[s]; ok {
		return entry, true
	}
	if idx := strings.LastIndex(s, "."); idx >= 0 {
		name := s[idx+1:]
		var best symbolEntry
		found := false
		bestLen := -1
		for qname, entry := range symbols {
			if strings.HasSuffix(qname, "."+name) || qname == name {
				if len(qname) > bestLen {
					best = entry
					bestLen = len(qname)
					found = true
				}
			}
		}
		if found {
			return best, true
		}
	}
	return symbolEntry{}, false
}
