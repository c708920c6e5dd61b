package export

import (
	"encoding/json"
	"io"

	"github.com/poiesic/catmat/ai"
	"github.com/poiesic/catmat/core"
)

type jsonResult struct {
	Rank      int     `json:"ranking"`
	Score     float32 `json:"score"`
	Code      string  `json:"codigo"`
	Desc      string  `json:"descricao"`
	Attribute string  `json:"classe,omitempty"`
}

type jsonAlternative struct {
	Code   string `json:"codigo"`
	Desc   string `json:"descricao"`
	Reason string `json:"motivo,omitempty"`
}

type jsonRecommendation struct {
	Code         string            `json:"codigo,omitempty"`
	Desc         string            `json:"descricao,omitempty"`
	Rationale    string            `json:"justificativa,omitempty"`
	Fallback     bool              `json:"fallback"`
	Reason       string            `json:"motivo_fallback,omitempty"`
	Alternatives []jsonAlternative `json:"alternativas,omitempty"`
}

type jsonItem struct {
	Item           int                 `json:"item"`
	Query          string              `json:"consulta"`
	Status         string              `json:"status"`
	Error          string              `json:"erro,omitempty"`
	DurationMS     int64               `json:"duracao_ms"`
	Results        []jsonResult        `json:"resultados"`
	Recommendation *jsonRecommendation `json:"recomendacao_ia,omitempty"`
}

// WriteJSON writes an indented JSON array with one object per query, in
// input order.
func WriteJSON(w io.Writer, results []core.BatchResult) error {
	items := make([]jsonItem, 0, len(results))
	for i := range results {
		items = append(items, toJSONItem(&results[i]))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(items)
}

func toJSONItem(r *core.BatchResult) jsonItem {
	out := jsonItem{
		Item:       r.Index + 1,
		Query:      r.Job.Query,
		Status:     statusLabel(r),
		Error:      errText(r.Err),
		DurationMS: r.Duration.Milliseconds(),
		Results:    make([]jsonResult, 0, len(r.Results)),
	}
	for _, res := range r.Results {
		out.Results = append(out.Results, jsonResult{
			Rank:      res.Rank,
			Score:     res.Score,
			Code:      res.Item.ID,
			Desc:      res.Item.Description,
			Attribute: res.Item.Attribute(ai.ClassAttribute),
		})
	}
	if rec := r.Recommendation; rec != nil {
		jr := &jsonRecommendation{
			Rationale: rec.Text,
			Fallback:  rec.Fallback,
			Reason:    string(rec.FallbackReason),
		}
		if rec.Pick != nil && rec.Pick.Item != nil {
			jr.Code = rec.Pick.Item.ID
			jr.Desc = rec.Pick.Item.Description
		}
		for _, alt := range rec.Alternatives {
			if alt.Item == nil {
				continue
			}
			jr.Alternatives = append(jr.Alternatives, jsonAlternative{
				Code:   alt.Item.ID,
				Desc:   alt.Item.Description,
				Reason: alt.Reason,
			})
		}
		out.Recommendation = jr
	}
	return out
}
