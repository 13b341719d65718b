// Package metadata implements the language-neutral Metadata Extractor
// contract (§4.5): two extractor implementations — one AST-native, one
// tree-structured-query-based — selected by language tag through a
// Registry, so adding a language is "add a registry entry" (§9).
package metadata

import (
	"github.com/giak/mnemolite/internal/chunk"
	"github.com/giak/mnemolite/internal/oracle"
)

// Complexity holds size/branching measures for a chunk.
type Complexity struct {
	Cyclomatic  *int `json:"cyclomatic"`
	LinesOfCode int  `json:"lines_of_code"`
}

// Metadata is the extractor's output record, matching the recognized
// keys of the data model's Metadata entity (§3).
type Metadata struct {
	ContentHash string            `json:"content_hash,omitempty"`
	Signature   string            `json:"signature,omitempty"`
	ReturnType  string            `json:"return_type,omitempty"`
	ParamTypes  map[string]string `json:"param_types,omitempty"`
	Imports     []string          `json:"imports"`
	Calls       []string          `json:"calls"`
	Complexity  Complexity        `json:"complexity"`
	DocString   string            `json:"docstring,omitempty"`
}

// AsMap renders Metadata into the map[string]any shape stored on
// chunk.Chunk.Metadata.
func (m Metadata) AsMap() map[string]any {
	out := map[string]any{
		"imports": m.Imports,
		"calls":   m.Calls,
		"complexity": map[string]any{
			"cyclomatic":    m.Complexity.Cyclomatic,
			"lines_of_code": m.Complexity.LinesOfCode,
		},
	}
	if m.ContentHash != "" {
		out["content_hash"] = m.ContentHash
	}
	if m.Signature != "" {
		out["signature"] = m.Signature
	}
	if m.ReturnType != "" {
		out["return_type"] = m.ReturnType
	}
	if len(m.ParamTypes) > 0 {
		out["param_types"] = m.ParamTypes
	}
	if m.DocString != "" {
		out["docstring"] = m.DocString
	}
	return out
}

// empty returns the best-effort fallback record required when extraction
// fails: empty imports/calls, a line count, never nil slices (§4.5).
func empty(source []byte) Metadata {
	return Metadata{
		Imports:    []string{},
		Calls:      []string{},
		Complexity: Complexity{Cyclomatic: nil, LinesOfCode: countLines(source)},
	}
}

func countLines(source []byte) int {
	if len(source) == 0 {
		return 0
	}
	n := 1
	for _, b := range source {
		if b == '\n' {
			n++
		}
	}
	return n
}

// Extractor is the contract both implementations satisfy. module_imports
// (the repository's already-resolved import table) is optional context
// used for resolving relative/aliased imports; nil is always valid.
type Extractor interface {
	Extract(sourceBytes []byte, node *chunk.Node, tree *chunk.Tree, language string, moduleImports map[string]string) Metadata
}

// WithOracle optionally fills an empty ReturnType from a type oracle's
// Hover result (§4.8); ParamTypes are not filled. Calls are bounded by
// oracle.DefaultTimeout and failures are silently ignored — the system
// must remain correct with the oracle absent.
func WithOracle(base Metadata, o oracle.Oracle, filePath string, startLine int) Metadata {
	if o == nil {
		return base
	}
	ctx, cancel := oracleContext()
	defer cancel()
	if typ, ok := o.Hover(ctx, filePath, startLine, 0); ok && base.ReturnType == "" {
		base.ReturnType = typ
	}
	return base
}
