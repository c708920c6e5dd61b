//go:generate go run ../cmd/musgen

package core

import (
	"cmp"
	"strconv"
	"strings"
	"time"
)

// CatalogItem is a single standardized procurement item. Items are loaded
// once and never modified afterwards.
type CatalogItem struct {
	ID          string
	Description string
	Attributes  map[string]string // Auxiliary columns, preserved as loaded
}

// Attribute returns the named auxiliary field, or "" when absent.
func (c *CatalogItem) Attribute(name string) string {
	if c == nil || c.Attributes == nil {
		return ""
	}
	return c.Attributes[name]
}

// SearchResult is one ranked match for a query.
type SearchResult struct {
	Item  *CatalogItem
	Score float32
	Rank  int // 1-based
}

// Neighbor is a raw (id, similarity) pair produced by the vector index.
type Neighbor struct {
	ID    string
	Score float32
}

// FallbackReason explains why a recommendation degraded to the top ANN hit.
type FallbackReason string

const (
	FallbackNone        FallbackReason = ""
	FallbackTimeout     FallbackReason = "timeout"
	FallbackUnavailable FallbackReason = "unavailable"
	FallbackInvalid     FallbackReason = "invalid"
	FallbackError       FallbackReason = "error"
	FallbackNoResults   FallbackReason = "no_results"
)

// Alternative is a secondary pick suggested by the recommender.
type Alternative struct {
	Item   *CatalogItem
	Reason string
}

// Recommendation is the outcome of asking the recommender to pick among
// search results. Callers inspect Fallback instead of catching errors: a
// fallback recommendation has Pick set to the top search result and an
// empty Text.
type Recommendation struct {
	Pick           *SearchResult
	Text           string
	Alternatives   []Alternative
	Fallback       bool
	FallbackReason FallbackReason
}

// HasText reports whether the recommender produced a rationale.
func (r *Recommendation) HasText() bool {
	return r != nil && !r.Fallback && r.Text != ""
}

// BatchJob is one query inside a batch request.
type BatchJob struct {
	Query string
	TopK  int
	UseAI bool
}

// BatchStatus classifies a finished batch job.
type BatchStatus string

const (
	BatchStatusOK       BatchStatus = "ok"
	BatchStatusDegraded BatchStatus = "degraded"
	BatchStatusFailed   BatchStatus = "failed"
)

// BatchResult holds the outcome of one BatchJob. Err is set when the job
// failed or its recommendation degraded; results may still be present in the
// latter case.
type BatchResult struct {
	Index          int // Position of the job in the request, 0-based
	Job            BatchJob
	Results        []SearchResult
	Recommendation *Recommendation // nil unless Job.UseAI
	Err            error
	Duration       time.Duration
}

// Status reports whether the job succeeded, degraded or failed.
func (r *BatchResult) Status() BatchStatus {
	switch {
	case r.Err == nil:
		return BatchStatusOK
	case len(r.Results) > 0:
		return BatchStatusDegraded
	default:
		return BatchStatusFailed
	}
}

// Top returns the best result, or nil when there are none.
func (r *BatchResult) Top() *SearchResult {
	if len(r.Results) == 0 {
		return nil
	}
	return &r.Results[0]
}

// IndexParams are the HNSW hyperparameters fixed at build time.
type IndexParams struct {
	M              int `json:"m"`
	EfConstruction int `json:"ef_construction"`
	EfSearch       int `json:"ef_search"`
}

// Manifest describes a persisted build artifact.
type Manifest struct {
	Fingerprint Fingerprint
	Model       string
	Dimension   int
	Count       int
	Params      IndexParams
	CatalogHash string
	IDs         []string
	CreatedAt   time.Time
}

// Artifact is the persisted unit of the embedding cache: every catalog
// embedding plus the serialized graph built over them. Embeddings[i]
// belongs to Manifest.IDs[i].
type Artifact struct {
	Manifest   Manifest
	Embeddings [][]float32
	Graph      []byte
}

// CompareIDs is a total order over item identifiers. Identifiers that parse
// as unsigned integers sort before all others and compare by value; equal
// values with different spellings ("123", "000123") fall back to the text.
// Everything else compares as text.
func CompareIDs(a, b string) int {
	an, aerr := strconv.ParseUint(a, 10, 64)
	bn, berr := strconv.ParseUint(b, 10, 64)
	switch {
	case aerr == nil && berr == nil:
		if c := cmp.Compare(an, bn); c != 0 {
			return c
		}
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	}
	return strings.Compare(a, b)
}

// BuildRecord summarizes the most recent artifact build.
type BuildRecord struct {
	Fingerprint Fingerprint
	Count       int
	Dimension   int
	EmbedTime   time.Duration
	IndexTime   time.Duration
	BuiltAt     time.Time
}
