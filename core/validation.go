package core

import (
	"fmt"
	"strings"
)

// ValidateQuery rejects empty or whitespace-only query text.
func ValidateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return &ValidationError{Field: "query", Reason: "must not be empty"}
	}
	return nil
}

// ValidateTopK rejects non-positive result counts.
func ValidateTopK(topK int) error {
	if topK <= 0 {
		return &ValidationError{Field: "top_k", Reason: fmt.Sprintf("must be a positive integer, got %d", topK)}
	}
	return nil
}

// ValidateSearch validates both inputs of a search call, query first.
func ValidateSearch(query string, topK int) error {
	if err := ValidateQuery(query); err != nil {
		return err
	}
	return ValidateTopK(topK)
}

// ValidateParams checks HNSW hyperparameters.
func ValidateParams(p IndexParams) error {
	if p.M < 2 {
		return &ValidationError{Field: "m", Reason: fmt.Sprintf("must be at least 2, got %d", p.M)}
	}
	if p.EfConstruction < 1 {
		return &ValidationError{Field: "ef_construction", Reason: fmt.Sprintf("must be positive, got %d", p.EfConstruction)}
	}
	if p.EfSearch < 1 {
		return &ValidationError{Field: "ef_search", Reason: fmt.Sprintf("must be positive, got %d", p.EfSearch)}
	}
	return nil
}
