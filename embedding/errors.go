package embedding

import "errors"

var (
	// ErrEmbedderRequired is returned when a nil embedder is supplied.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrModelRequired is returned when no model identifier is supplied.
	ErrModelRequired = errors.New("model identifier is required")

	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrCountMismatch indicates the embedder returned the wrong number of vectors.
	ErrCountMismatch = errors.New("embedder returned wrong number of vectors")

	// ErrZeroVector indicates the embedder returned a vector that cannot be normalized.
	ErrZeroVector = errors.New("embedder returned a zero vector")

	// ErrClosed indicates the generator has been closed.
	ErrClosed = errors.New("generator is closed")
)
