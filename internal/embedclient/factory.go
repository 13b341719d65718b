package embedclient

import "fmt"

// Backend selects which Embedder implementation New constructs.
type Backend string

const (
	// BackendStatic is the dependency-free hash-projection embedder. It is
	// the default: deterministic, requires no network or model file, and
	// satisfies the contract's "pure function of (domain, input)" shape
	// well enough to exercise every other component end-to-end.
	BackendStatic Backend = "static"
)

// Config selects and sizes an Embedder.
type Config struct {
	Backend   Backend
	CacheSize int // 0 uses DefaultEmbeddingCacheSize
}

// New builds the configured Embedder, wrapped in a CachedEmbedder.
//
// The embedding model backend is treated as an injectable function of
// (domain, input); concrete network- or process-backed implementations can
// be added by registering a new Backend case here without touching any
// caller of Embedder.
func New(cfg Config) (Embedder, error) {
	var inner Embedder
	switch cfg.Backend {
	case "", BackendStatic:
		inner = NewStaticEmbedder()
	default:
		return nil, fmt.Errorf("embedclient: unknown backend %q", cfg.Backend)
	}
	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
