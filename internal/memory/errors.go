// Package memory indexes chat history into chunks and serves hybrid
// (lexical + semantic) retrieval over them.
package memory

import (
	"errors"
	"fmt"
)

// Memory errors.
var (
	// ErrEmbeddingFailed indicates that the embedding function returned an error.
	ErrEmbeddingFailed = errors.New("memory: embedding failed")

	// ErrRateLimited indicates that the embedding API rate limit was exceeded.
	ErrRateLimited = errors.New("memory: rate limited")

	// ErrInvalidDims indicates that vector dimensions don't match.
	ErrInvalidDims = errors.New("memory: vector dimensions mismatch")

	// ErrNoGeneration indicates that the engine has no generation loaded yet.
	ErrNoGeneration = errors.New("memory: no index generation loaded")

	// ErrInvalidArtifact indicates that a persisted artifact could not be decoded.
	ErrInvalidArtifact = errors.New("memory: invalid index artifact")

	// ErrNoTokenizer indicates that a requested tokenizer is not available.
	ErrNoTokenizer = errors.New("memory: tokenizer unavailable")

	// ErrIndexMismatch indicates that a generation was built with a different
	// embedder or tokenizer than the one serving queries.
	ErrIndexMismatch = errors.New("memory: index built with a different embedder or tokenizer")
)

// MemoryError represents an error with context about the memory operation.
type MemoryError struct {
	Op  string // Operation name (e.g., "search", "build", "load")
	ID  string // Related generation or chunk ID (if applicable)
	Err error  // Underlying error
}

// Error implements the error interface.
func (e *MemoryError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *MemoryError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports that the persisted index artifacts are absent.
// Serving cannot start until the offline build has been run.
type ConfigurationError struct {
	Dir string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("memory: no usable index in %s (run `recall build` first): %v", e.Dir, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// IndexConsistencyError reports that the chunk store, the embedding matrix and
// the lexical index of one generation disagree on their row counts. The
// generation must be rebuilt; it is never truncated to fit.
type IndexConsistencyError struct {
	Generation string
	Chunks     int
	Embeddings int
	Documents  int
}

func (e *IndexConsistencyError) Error() string {
	return fmt.Sprintf("memory: generation %q is inconsistent: chunks=%d embeddings=%d lexical_docs=%d (rebuild required)",
		e.Generation, e.Chunks, e.Embeddings, e.Documents)
}
