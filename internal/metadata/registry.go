package metadata

// Registry maps a language tag to the Extractor that should handle it,
// satisfying §4.5's "routing is performed by language tag".
type Registry struct {
	byLanguage map[string]Extractor
	fallback   Extractor
}

// NewRegistry builds a Registry with Go routed to NativeGoExtractor and
// every tree-sitter-backed language routed to a shared TreeQueryExtractor
// instance, matching the teacher's DefaultRegistry dispatch pattern
// (internal/chunk/languages.go).
func NewRegistry() *Registry {
	tq := NewTreeQueryExtractor(DefaultSpecs())
	r := &Registry{
		byLanguage: map[string]Extractor{
			"go": NativeGoExtractor{},
		},
		fallback: tq,
	}
	for lang := range DefaultSpecs() {
		r.byLanguage[lang] = tq
	}
	return r
}

// For returns the Extractor registered for language, or the generic
// tree-query extractor if none is registered — extraction is always
// best-effort, never absent (§4.5).
func (r *Registry) For(language string) Extractor {
	if e, ok := r.byLanguage[language]; ok {
		return e
	}
	return r.fallback
}

// Register adds or replaces the Extractor for language.
func (r *Registry) Register(language string, e Extractor) {
	r.byLanguage[language] = e
}
