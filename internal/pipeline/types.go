// Package pipeline implements the per-file Indexing Pipeline (§4.6):
// a strict S0→S8 state machine that turns source bytes into persisted,
// embedded, cached chunks, and the repository-level Graph Constructor
// pass that runs once every file in a repository has committed.
package pipeline

import "time"

// Status is the terminal outcome of a single file's pipeline run.
type Status string

const (
	StatusIndexed Status = "indexed"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// FailureReason enumerates the failure classes of §4.6.
type FailureReason string

const (
	ReasonNone            FailureReason = ""
	ReasonUnknownLanguage FailureReason = "unknown_language"
	ReasonParseError      FailureReason = "parse_error"
	ReasonChunkingError   FailureReason = "chunking_error"
	ReasonEmbeddingError  FailureReason = "embedding_error" // non-fatal, recorded on an otherwise-indexed result
	ReasonPersistError    FailureReason = "persist_error"
	ReasonTimeout         FailureReason = "timeout"
)

// FileResult is the outcome of IndexFile, corresponding to §6.1's
// FileIndexResult.
type FileResult struct {
	Repository    string
	FilePath      string
	Status        Status
	Reason        FailureReason
	ChunksCount   int
	EmbeddedCount int // chunks that got at least a TEXT embedding
	CacheHit      bool
	Duration      time.Duration
	Err           error
}

// Timeout budgets per §4.6's failure-class notes.
const (
	ParseTimeout    = 10 * time.Second
	MetadataTimeout = 3 * time.Second
	EmbedTimeout    = 30 * time.Second
	PersistTimeout  = 60 * time.Second
)
