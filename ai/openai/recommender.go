package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/poiesic/catmat/ai"
)

const maxParseAttempts = 3

// ErrEmptyResponse indicates the model returned no choices.
var ErrEmptyResponse = errors.New("model returned no choices")

// Recommender implements ai.Recommender using OpenAI-compatible chat APIs.
type Recommender struct {
	client      llms.Model
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

// newRecommender is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newRecommender(config *ai.Config) (*Recommender, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.RecommenderHost),
		openai.WithToken(config.RecommenderAPIKey),
		openai.WithModel(config.RecommenderModel),
	)
	if err != nil {
		return nil, err
	}

	return &Recommender{
		client:      client,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		logger:      slog.Default().With("component", "openai-recommender"),
	}, nil
}

// NewRecommender creates a recommender using the provided configuration.
// When the configuration carries no API key the returned recommender is
// ai.DisabledRecommender.
//
// Returns ai.Recommender interface to enforce abstraction.
func NewRecommender(config *ai.Config) (ai.Recommender, error) {
	if !config.RecommenderEnabled() {
		return ai.DisabledRecommender{}, nil
	}
	return newRecommender(config)
}

// Recommend asks the chat model to pick the best candidate. Malformed JSON
// answers are repaired when possible and otherwise re-requested.
func (r *Recommender) Recommend(ctx context.Context, req *ai.RecommendationRequest) (*ai.RecommendationResponse, error) {
	prompt, err := buildUserPrompt(req)
	if err != nil {
		return nil, err
	}
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(prompt)},
		},
	}

	var lastErr error
	for attempt := 1; attempt <= maxParseAttempts; attempt++ {
		response, err := r.client.GenerateContent(ctx, content,
			llms.WithTemperature(r.temperature),
			llms.WithMaxTokens(r.maxTokens),
			llms.WithJSONMode(),
		)
		if err != nil {
			r.logger.Error("failed to generate content", "attempt", attempt, "err", err)
			return nil, err
		}
		if len(response.Choices) < 1 {
			return nil, ErrEmptyResponse
		}

		result, err := parseRecommendation(response.Choices[0].Content)
		if err != nil {
			lastErr = err
			r.logger.Warn("error parsing recommender response", "attempt", attempt, "err", err)
			continue
		}
		r.logger.Debug("recommendation received", "best_id", result.BestID, "alternatives", len(result.Alternatives))
		return result, nil
	}

	r.logger.Error("failed to parse recommender response after retries", "err", lastErr)
	return nil, fmt.Errorf("parse recommendation: %w", lastErr)
}

// parseRecommendation decodes a model answer, tolerating code fences and
// repairable JSON damage.
func parseRecommendation(raw string) (*ai.RecommendationResponse, error) {
	text := stripCodeFences(raw)
	var result ai.RecommendationResponse
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		repaired, rerr := repairJSON(text)
		if rerr != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(repaired), &result); err != nil {
			return nil, err
		}
	}
	if result.BestID == "" {
		return nil, errors.New("response has no best_id")
	}
	return &result, nil
}
