package batch

import "errors"

var (
	// ErrEngineRequired is returned when a search engine is not provided.
	ErrEngineRequired = errors.New("search engine required")

	// ErrEmbedderRequired is returned when a query embedder is not provided.
	ErrEmbedderRequired = errors.New("query embedder required")

	// ErrRecommendationFailed marks a job whose recommendation fell back
	// for a reason other than a timeout.
	ErrRecommendationFailed = errors.New("recommendation failed")

	// ErrNotProcessed marks a job still pending when the batch was cancelled.
	ErrNotProcessed = errors.New("job not processed")
)
