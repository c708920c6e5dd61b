package core

import (
	"errors"
	"testing"
)

func TestValidateSearch(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		topK      int
		wantField string
	}{
		{name: "valid", query: "computador", topK: 5},
		{name: "empty query", query: "", topK: 5, wantField: "query"},
		{name: "whitespace query", query: " \t\n", topK: 5, wantField: "query"},
		{name: "zero top_k", query: "caneta", topK: 0, wantField: "top_k"},
		{name: "negative top_k", query: "caneta", topK: -3, wantField: "top_k"},
		{name: "query checked first", query: "", topK: 0, wantField: "query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSearch(tt.query, tt.topK)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("ValidateSearch() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("ValidateSearch() error = %v, want ErrValidation", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("ValidateSearch() error type = %T, want *ValidationError", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("ValidationError.Field = %q, want %q", verr.Field, tt.wantField)
			}
		})
	}
}

func TestValidateParams(t *testing.T) {
	tests := []struct {
		name    string
		params  IndexParams
		wantErr bool
	}{
		{name: "defaults", params: IndexParams{M: 32, EfConstruction: 200, EfSearch: 100}},
		{name: "m too small", params: IndexParams{M: 1, EfConstruction: 200, EfSearch: 100}, wantErr: true},
		{name: "zero ef_construction", params: IndexParams{M: 16, EfConstruction: 0, EfSearch: 100}, wantErr: true},
		{name: "zero ef_search", params: IndexParams{M: 16, EfConstruction: 100, EfSearch: 0}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParams(tt.params)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateParams() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("ValidateParams() error = %v, want ErrValidation", err)
			}
		})
	}
}
