package mock

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/poiesic/catmat/ai"
)

// MockRecommender is a test double for ai.Recommender.
type MockRecommender struct {
	// RecommendFunc is called by Recommend if set.
	RecommendFunc func(ctx context.Context, req *ai.RecommendationRequest) (*ai.RecommendationResponse, error)

	// Delay makes every call wait before answering, honoring ctx.
	Delay time.Duration

	// Err, if set, is returned by every call after Delay.
	Err error

	callCount atomic.Int64
}

// NewMockRecommender creates a recommender that picks the first candidate.
func NewMockRecommender() *MockRecommender {
	return &MockRecommender{}
}

// Recommend returns the first candidate as best pick, or whatever
// RecommendFunc decides.
func (m *MockRecommender) Recommend(ctx context.Context, req *ai.RecommendationRequest) (*ai.RecommendationResponse, error) {
	m.callCount.Add(1)

	if m.Delay > 0 {
		timer := time.NewTimer(m.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if m.RecommendFunc != nil {
		return m.RecommendFunc(ctx, req)
	}

	resp := &ai.RecommendationResponse{Rationale: "mock rationale"}
	for i, c := range req.Candidates {
		if i == 0 {
			resp.BestID = c.ID
			continue
		}
		if len(resp.Alternatives) < 2 {
			resp.Alternatives = append(resp.Alternatives, ai.RankedReason{ID: c.ID, Reason: "mock alternative"})
		}
	}
	return resp, nil
}

// CallCount returns the number of Recommend calls.
func (m *MockRecommender) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and injected behavior.
func (m *MockRecommender) Reset() {
	m.callCount.Store(0)
	m.RecommendFunc = nil
	m.Delay = 0
	m.Err = nil
}
