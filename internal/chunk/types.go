package chunk

import (
	"context"
	"time"
)

// Chunk size defaults (based on 2025 RAG research)
const (
	DefaultMaxChunkTokens = 512 // Optimal for 85-90% recall
	DefaultOverlapTokens  = 64  // ~12.5% overlap
	MinChunkTokens        = 100 // Minimum viable chunk
	TokensPerChar         = 4   // Rough approximation: 4 chars = 1 token
)

// Kind enumerates the recognized chunk kinds.
type Kind string

const (
	KindFunction     Kind = "function"
	KindMethod       Kind = "method"
	KindClass        Kind = "class"
	KindInterface    Kind = "interface"
	KindEnum         Kind = "enum"
	KindModule       Kind = "module"
	KindFallbackFile Kind = "fallback_fixed"
)

// Chunk is a retrievable, indexable unit of source content.
//
// chunk_id is derived from repository, file_path and the chunk's name
// (generateChunkID) and is stable across re-index while those are
// unchanged. Language and kind are not inputs to the ID.
type Chunk struct {
	ChunkID       string
	Repository    string
	FilePath      string
	Language      string
	Kind          Kind
	Name          string
	QualifiedName string
	StartLine     int // 1-indexed
	EndLine       int // inclusive
	SourceCode    string
	Metadata      map[string]any
	EmbeddingText []float32
	EmbeddingCode []float32
	ContentHash   string // fingerprint.Fingerprint, stored as string to keep Metadata JSON-round-trippable
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// Symbols is the raw symbol list the chunker produced before any
	// Graph Constructor resolution; kept for diagnostics, not persisted.
	Symbols []*Symbol
	// DocString mirrors Metadata["docstring"] for quick access.
	DocString string
	// RawSourceCode is just the symbol body, without surrounding file
	// context (package/import header). SourceCode is RawSourceCode
	// prefixed by FileContext and is what gets embedded/persisted;
	// these two are additive diagnostic fields, not part of the
	// persisted shape.
	RawSourceCode string
	FileContext   string
}

// FileInput is input for the Chunker interface.
type FileInput struct {
	Repository string
	Path       string // relative path
	Content    []byte
	Language   string
}

// Chunker splits a file into semantic chunks.
type Chunker interface {
	Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error)
	SupportedExtensions() []string
}

// SymbolType represents the kind of code symbol.
type SymbolType string

const (
	SymbolTypeFunction  SymbolType = "function"
	SymbolTypeClass     SymbolType = "class"
	SymbolTypeInterface SymbolType = "interface"
	SymbolTypeType      SymbolType = "type"
	SymbolTypeVariable  SymbolType = "variable"
	SymbolTypeConstant  SymbolType = "constant"
	SymbolTypeMethod    SymbolType = "method"
)

// Symbol represents a code symbol extracted from parsing.
type Symbol struct {
	Name       string
	Type       SymbolType
	StartLine  int
	EndLine    int
	Signature  string
	DocComment string
}

// Tree represents a parsed AST.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Node represents a node in the AST.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
}

// Point represents a position in the source code.
type Point struct {
	Row    uint32 // 0-indexed line number
	Column uint32
}

// LanguageConfig holds configuration for a supported language.
type LanguageConfig struct {
	Name       string
	Extensions []string

	FunctionTypes  []string
	ClassTypes     []string
	InterfaceTypes []string
	MethodTypes    []string
	TypeDefTypes   []string
	ConstantTypes  []string
	VariableTypes  []string

	NameField string
}
