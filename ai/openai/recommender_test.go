package openai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/catmat/ai"
)

func TestParseRecommendation(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantID  string
		wantAlt int
		wantErr bool
	}{
		{
			name:    "plain json",
			raw:     `{"best_id":"150001","rationale":"Atende ao pedido.","alternatives":[{"id":"150002","reason":"Similar"}]}`,
			wantID:  "150001",
			wantAlt: 1,
		},
		{
			name:   "code fenced",
			raw:    "```json\n{\"best_id\":\"42\",\"rationale\":\"ok\",\"alternatives\":[]}\n```",
			wantID: "42",
		},
		{
			name:    "trailing comma repaired",
			raw:     `{"best_id":"7","rationale":"ok","alternatives":[{"id":"8","reason":"x"},],}`,
			wantID:  "7",
			wantAlt: 1,
		},
		{
			name:    "missing best id",
			raw:     `{"best_id":"","rationale":"nothing fits","alternatives":[]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRecommendation(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, got.BestID)
			assert.Len(t, got.Alternatives, tt.wantAlt)
		})
	}
}

func TestBuildUserPrompt(t *testing.T) {
	prompt, err := buildUserPrompt(&ai.RecommendationRequest{
		Query: "computador\n  de mesa",
		Candidates: []ai.Candidate{
			{ID: "1", Description: "desktop computer", Class: "Computadores", Score: 0.91234},
			{ID: "3", Description: "notebook\ncomputer", Score: 0.8},
		},
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, `"computador de mesa"`)
	assert.Contains(t, prompt, `"codigo": "1"`)
	assert.Contains(t, prompt, `"score": "0.912"`)
	assert.Contains(t, prompt, `"descricao": "notebook computer"`)
	assert.Contains(t, prompt, `"best_id"`)
	assert.Equal(t, 1, strings.Count(prompt, `"classe"`))
}

func TestNewRecommenderDisabledWithoutKey(t *testing.T) {
	rec, err := NewRecommender(ai.DefaultConfig())
	require.NoError(t, err)
	assert.IsType(t, ai.DisabledRecommender{}, rec)
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFences("  {\"a\":1}  "))
}
