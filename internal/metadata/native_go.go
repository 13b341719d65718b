package metadata

import (
	"strings"

	"github.com/giak/mnemolite/internal/chunk"
)

// NativeGoExtractor walks chunk.Node trees directly for Go, the one
// language the core extracts with maximum fidelity (no generic query
// language, per §4.5/§9). Grounded on internal/chunk's Node.Walk and
// SymbolExtractor name-resolution helpers.
type NativeGoExtractor struct{}

var _ Extractor = NativeGoExtractor{}

func (NativeGoExtractor) Extract(source []byte, node *chunk.Node, tree *chunk.Tree, language string, moduleImports map[string]string) Metadata {
	if node == nil {
		return empty(source)
	}

	md := Metadata{
		Imports: []string{},
		Calls:   []string{},
	}

	cyclomatic := 1
	node.Walk(func(n *chunk.Node) bool {
		switch n.Type {
		case "import_spec":
			if imp := extractGoImport(n, source); imp != "" {
				md.Imports = append(md.Imports, imp)
			}
		case "call_expression":
			if call := extractGoCall(n, source); call != "" {
				md.Calls = append(md.Calls, call)
			}
		case "if_statement", "for_statement", "expression_switch_statement",
			"type_switch_statement", "case_clause", "communication_case":
			cyclomatic++
		case "binary_expression":
			content := n.GetContent(source)
			if strings.Contains(content, "&&") || strings.Contains(content, "||") {
				cyclomatic++
			}
		}
		return true
	})

	md.Complexity = Complexity{Cyclomatic: &cyclomatic, LinesOfCode: countLines(source)}
	md.Signature, md.DocString = extractGoSignatureAndDoc(node, source)
	return md
}

func extractGoImport(n *chunk.Node, source []byte) string {
	var path string
	for _, child := range n.Children {
		if child.Type == "interpreted_string_literal" {
			path = strings.Trim(child.GetContent(source), `"`)
		}
	}
	return path
}

func extractGoCall(n *chunk.Node, source []byte) string {
	if len(n.Children) == 0 {
		return ""
	}
	fn := n.Children[0]
	switch fn.Type {
	case "identifier":
		return fn.GetContent(source)
	case "selector_expression":
		// o.m(...) -> stored as "o.m"; if the receiver reads like a type
		// (capitalized, no further dots) this also matches a constructor
		// call pattern ("pkg.New" etc.) and is left as-is per §4.5's
		// "implementation choice, must be consistent".
		return fn.GetContent(source)
	}
	return ""
}

func extractGoSignatureAndDoc(n *chunk.Node, source []byte) (signature, doc string) {
	content := n.GetContent(source)
	if content == "" {
		return "", ""
	}
	lines := strings.SplitN(content, "\n", 2)
	first := strings.TrimSpace(lines[0])
	if idx := strings.Index(first, "{"); idx != -1 {
		signature = strings.TrimSpace(first[:idx])
	} else {
		signature = first
	}
	return signature, ""
}
