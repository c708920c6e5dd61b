package openai

import (
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// stripCodeFences removes a surrounding markdown code block, if any.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// repairJSON fixes common LLM JSON damage such as unquoted keys, trailing
// commas and truncated objects.
func repairJSON(s string) (string, error) {
	return jsonrepair.JSONRepair(s)
}

// collapseWhitespace folds runs of whitespace, including newlines, into
// single spaces.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
