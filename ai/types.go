package ai

import (
	"context"

	"github.com/poiesic/catmat/core"
)

// Candidate is one search result offered to the recommender.
type Candidate struct {
	ID          string
	Description string
	Class       string
	Score       float32
}

// RecommendationRequest carries a query and its ranked candidates.
type RecommendationRequest struct {
	Query      string
	Candidates []Candidate
}

// RankedReason is a secondary pick with its justification.
type RankedReason struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// RecommendationResponse is the recommender's decision.
type RecommendationResponse struct {
	BestID       string         `json:"best_id"`
	Rationale    string         `json:"rationale"`
	Alternatives []RankedReason `json:"alternatives"`
}

// CandidatesFromResults converts the first limit search results into
// recommender candidates. The "Nome da Classe" attribute is passed as the
// item class when present.
func CandidatesFromResults(results []core.SearchResult, limit int) []Candidate {
	n := min(max(limit, 0), len(results))
	out := make([]Candidate, 0, n)
	for _, r := range results[:n] {
		out = append(out, Candidate{
			ID:          r.Item.ID,
			Description: r.Item.Description,
			Class:       r.Item.Attribute(ClassAttribute),
			Score:       r.Score,
		})
	}
	return out
}

// ClassAttribute is the catalog column naming an item's class.
const ClassAttribute = "Nome da Classe"

// DisabledRecommender refuses every request. It stands in when no
// recommender credentials are configured.
type DisabledRecommender struct{}

var _ Recommender = DisabledRecommender{}

// Recommend always returns core.ErrRecommenderUnavailable.
func (DisabledRecommender) Recommend(context.Context, *RecommendationRequest) (*RecommendationResponse, error) {
	return nil, core.ErrRecommenderUnavailable
}
