package server

import (
	"github.com/poiesic/catmat/batch"
	"github.com/poiesic/catmat/core"
)

type searchRequest struct {
	Query string `json:"query"`
	TopK  *int   `json:"top_k,omitempty"`
	UseAI bool   `json:"use_ai"`
}

type batchItem struct {
	Query string `json:"query"`
	TopK  *int   `json:"top_k,omitempty"`
	UseAI *bool  `json:"use_ai,omitempty"`
}

type batchRequest struct {
	Items []batchItem `json:"items"`
	TopK  *int        `json:"top_k,omitempty"`
	UseAI bool        `json:"use_ai"`
}

type resultJSON struct {
	Rank        int               `json:"rank"`
	Score       float32           `json:"score"`
	ID          string            `json:"id"`
	Description string            `json:"description"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

type alternativeJSON struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Reason      string `json:"reason,omitempty"`
}

type recommendationJSON struct {
	ID             string            `json:"id,omitempty"`
	Description    string            `json:"description,omitempty"`
	Text           string            `json:"text,omitempty"`
	Alternatives   []alternativeJSON `json:"alternatives,omitempty"`
	Fallback       bool              `json:"fallback"`
	FallbackReason string            `json:"fallback_reason,omitempty"`
}

type searchResponse struct {
	Query          string              `json:"query"`
	Results        []resultJSON        `json:"results"`
	Recommendation *recommendationJSON `json:"recommendation,omitempty"`
	ElapsedMS      float64             `json:"elapsed_ms"`
}

type batchItemJSON struct {
	Index          int                 `json:"index"`
	Query          string              `json:"query"`
	Status         core.BatchStatus    `json:"status"`
	Error          string              `json:"error,omitempty"`
	Results        []resultJSON        `json:"results"`
	Recommendation *recommendationJSON `json:"recommendation,omitempty"`
}

type summaryJSON struct {
	Total       int     `json:"total"`
	Succeeded   int     `json:"succeeded"`
	Degraded    int     `json:"degraded"`
	Failed      int     `json:"failed"`
	AvgTopScore float64 `json:"avg_top_score"`
	ElapsedMS   float64 `json:"elapsed_ms"`
}

type batchResponse struct {
	RunID   string          `json:"run_id"`
	Summary summaryJSON     `json:"summary"`
	Items   []batchItemJSON `json:"items"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func toResults(results []core.SearchResult) []resultJSON {
	out := make([]resultJSON, 0, len(results))
	for _, r := range results {
		out = append(out, resultJSON{
			Rank:        r.Rank,
			Score:       r.Score,
			ID:          r.Item.ID,
			Description: r.Item.Description,
			Attributes:  r.Item.Attributes,
		})
	}
	return out
}

func toRecommendation(rec *core.Recommendation) *recommendationJSON {
	if rec == nil {
		return nil
	}
	out := &recommendationJSON{
		Text:           rec.Text,
		Fallback:       rec.Fallback,
		FallbackReason: string(rec.FallbackReason),
	}
	if rec.Pick != nil && rec.Pick.Item != nil {
		out.ID = rec.Pick.Item.ID
		out.Description = rec.Pick.Item.Description
	}
	for _, alt := range rec.Alternatives {
		if alt.Item == nil {
			continue
		}
		out.Alternatives = append(out.Alternatives, alternativeJSON{
			ID:          alt.Item.ID,
			Description: alt.Item.Description,
			Reason:      alt.Reason,
		})
	}
	return out
}

func toBatchResponse(run *batch.Run) batchResponse {
	resp := batchResponse{
		RunID: run.ID.String(),
		Summary: summaryJSON{
			Total:       run.Summary.Total,
			Succeeded:   run.Summary.Succeeded,
			Degraded:    run.Summary.Degraded,
			Failed:      run.Summary.Failed,
			AvgTopScore: run.Summary.AvgTopScore,
			ElapsedMS:   milliseconds(run.Summary.Elapsed.Seconds()),
		},
		Items: make([]batchItemJSON, 0, len(run.Results)),
	}
	for i := range run.Results {
		r := &run.Results[i]
		item := batchItemJSON{
			Index:          r.Index,
			Query:          r.Job.Query,
			Status:         r.Status(),
			Results:        toResults(r.Results),
			Recommendation: toRecommendation(r.Recommendation),
		}
		if r.Err != nil {
			item.Error = r.Err.Error()
		}
		resp.Items = append(resp.Items, item)
	}
	return resp
}

func milliseconds(seconds float64) float64 {
	return float64(int64(seconds*1e6)) / 1e3
}
