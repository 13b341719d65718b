package metadata

import (
	"strings"

	"github.com/giak/mnemolite/internal/chunk"
)

// QuerySpec is a per-language node-type table driving TreeQueryExtractor,
// generalized from the teacher's chunk.LanguageConfig node-type tables
// (FunctionTypes/ClassTypes/...) to the import/call/branch concerns the
// Metadata Extractor needs.
type QuerySpec struct {
	ImportNodeTypes []string
	CallNodeTypes   []string
	BranchNodeTypes []string

	// ImportPathOf extracts the "<module>" or "<module>.<symbol>" string
	// from an import node.
	ImportPathOf func(n *chunk.Node, source []byte) (path string, ok bool)
	// CallNameOf extracts the "name" / "object.method" / "Ctor" string
	// from a call node.
	CallNameOf func(n *chunk.Node, source []byte) (name string, ok bool)
}

// TreeQueryExtractor is the generic implementation: it walks the parsed
// tree the same way for every language, driven entirely by a QuerySpec
// looked up by language tag. Adding a language means adding a QuerySpec,
// not writing a new walker (§9).
type TreeQueryExtractor struct {
	specs map[string]QuerySpec
}

var _ Extractor = (*TreeQueryExtractor)(nil)

// NewTreeQueryExtractor builds an extractor over the given per-language
// specs.
func NewTreeQueryExtractor(specs map[string]QuerySpec) *TreeQueryExtractor {
	return &TreeQueryExtractor{specs: specs}
}

func (e *TreeQueryExtractor) Extract(source []byte, node *chunk.Node, tree *chunk.Tree, language string, moduleImports map[string]string) Metadata {
	spec, ok := e.specs[language]
	if !ok || node == nil {
		// best-effort fallback per §4.5: never raise, never corrupt the
		// pipeline with a missing spec.
		return empty(source)
	}

	md := Metadata{Imports: []string{}, Calls: []string{}}
	cyclomatic := 1

	node.Walk(func(n *chunk.Node) bool {
		if contains(spec.ImportNodeTypes, n.Type) && spec.ImportPathOf != nil {
			if path, ok := spec.ImportPathOf(n, source); ok && path != "" {
				md.Imports = append(md.Imports, path)
			}
		}
		if contains(spec.CallNodeTypes, n.Type) && spec.CallNameOf != nil {
			if name, ok := spec.CallNameOf(n, source); ok && name != "" {
				md.Calls = append(md.Calls, name)
			}
		}
		if contains(spec.BranchNodeTypes, n.Type) {
			cyclomatic++
		}
		return true
	})

	md.Complexity = Complexity{Cyclomatic: &cyclomatic, LinesOfCode: countLines(source)}
	md.Signature = firstLineUpToBrace(node.GetContent(source))
	return md
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func firstLineUpToBrace(content string) string {
	if content == "" {
		return ""
	}
	first := strings.SplitN(content, "\n", 2)[0]
	first = strings.TrimSpace(first)
	if idx := strings.Index(first, "{"); idx != -1 {
		return strings.TrimSpace(first[:idx])
	}
	return first
}

// DefaultSpecs returns QuerySpecs for TypeScript/JavaScript and Python,
// the languages the teacher's tree-sitter grammars already cover
// (internal/chunk/languages.go), generalized to the import/call concern.
func DefaultSpecs() map[string]QuerySpec {
	jsImport := func(n *chunk.Node, source []byte) (string, bool) {
		str := n.FindChildByType("string")
		if str == nil {
			return "", false
		}
		return strings.Trim(str.GetContent(source), `"'`), true
	}
	jsCall := func(n *chunk.Node, source []byte) (string, bool) {
		if len(n.Children) == 0 {
			return "", false
		}
		callee := n.Children[0]
		switch callee.Type {
		case "identifier", "member_expression":
			return callee.GetContent(source), true
		case "new_expression":
			return callee.GetContent(source), true
		}
		return "", false
	}
	jsSpec := QuerySpec{
		ImportNodeTypes: []string{"import_statement"},
		CallNodeTypes:   []string{"call_expression", "new_expression"},
		BranchNodeTypes: []string{"if_statement", "for_statement", "for_in_statement", "while_statement", "switch_case", "ternary_expression"},
		ImportPathOf:    jsImport,
		CallNameOf:      jsCall,
	}

	pyImport := func(n *chunk.Node, source []byte) (string, bool) {
		return strings.TrimSpace(n.GetContent(source)), true
	}
	pyCall := func(n *chunk.Node, source []byte) (string, bool) {
		if len(n.Children) == 0 {
			return "", false
		}
		return n.Children[0].GetContent(source), true
	}
	pySpec := QuerySpec{
		ImportNodeTypes: []string{"import_statement", "import_from_statement"},
		CallNodeTypes:   []string{"call"},
		BranchNodeTypes: []string{"if_statement", "for_statement", "while_statement", "elif_clause", "except_clause"},
		ImportPathOf:    pyImport,
		CallNameOf:      pyCall,
	}

	return map[string]QuerySpec{
		"typescript": jsSpec,
		"tsx":        jsSpec,
		"javascript": jsSpec,
		"jsx":        jsSpec,
		"python":     pySpec,
	}
}
