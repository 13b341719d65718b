package store

import (
	"os"
	"path/filepath"
)

// NewBM25Index creates the lexical BM25Index backend: SQLite FTS5 with
// WAL mode, the one backend the teacher's own history migrated to
// (BUG-064 moved off Bleve/BoltDB's single-process file lock). If
// basePath is empty, creates an in-memory index for testing.
func NewBM25Index(basePath string, config BM25Config) (BM25Index, error) {
	var path string
	if basePath != "" {
		path = basePath + ".db"
	}
	return NewSQLiteBM25Index(path, config)
}

// GetBM25IndexPath returns the full path to the BM25 index file.
func GetBM25IndexPath(dataDir string) string {
	return filepath.Join(dataDir, "bm25.db")
}

// fileExists checks if a file exists at the given path.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
