package openai

import (
	"encoding/json"
	"fmt"

	"github.com/poiesic/catmat/ai"
)

const systemPrompt = `You are a public procurement specialist with deep knowledge of CATMAT, the Brazilian federal materials catalog.
Be objective and practical, and focus on what the buyer actually needs.`

const responseSchema = `{
  "type": "object",
  "properties": {
    "best_id": {"type": "string"},
    "rationale": {"type": "string"},
    "alternatives": {
      "type": "array",
      "maxItems": 2,
      "items": {
        "type": "object",
        "properties": {
          "id": {"type": "string"},
          "reason": {"type": "string"}
        },
        "required": ["id", "reason"],
        "additionalProperties": false
      }
    }
  },
  "required": ["best_id", "rationale", "alternatives"],
  "additionalProperties": false
}`

const userPromptTemplate = `BUYER REQUEST: %q

ITEMS FOUND BY SEMANTIC SEARCH (best first):
%s

TASK:
1. Compare the items against the buyer request.
2. Choose the single item that best meets the need and put its "codigo" in best_id.
3. Give up to two runner-up items in alternatives, each with a short reason.
4. In rationale, briefly explain the choice and point out any important differences between items. If no item is really suitable, say so.

Only use codes from the list above. Write rationale and reasons in Brazilian Portuguese.

Output ONLY valid JSON that follows this schema, with no text before or after the object:

%s`

// promptItem is the per-candidate shape shown to the model.
type promptItem struct {
	Code        string `json:"codigo"`
	Description string `json:"descricao"`
	Score       string `json:"score"`
	Class       string `json:"classe,omitempty"`
}

// buildUserPrompt renders the request with its candidates as JSON.
func buildUserPrompt(req *ai.RecommendationRequest) (string, error) {
	items := make([]promptItem, len(req.Candidates))
	for i, c := range req.Candidates {
		items[i] = promptItem{
			Code:        c.ID,
			Description: collapseWhitespace(c.Description),
			Score:       fmt.Sprintf("%.3f", c.Score),
			Class:       c.Class,
		}
	}
	listing, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(userPromptTemplate, collapseWhitespace(req.Query), listing, responseSchema), nil
}
