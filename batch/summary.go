package batch

import (
	"time"

	"github.com/poiesic/catmat/core"
)

// Summary aggregates the outcome of a batch.
type Summary struct {
	Total     int
	Succeeded int
	Degraded  int
	Failed    int
	// AvgTopScore is the mean score of the first result over jobs that
	// returned at least one result.
	AvgTopScore float64
	Elapsed     time.Duration
}

// Summarize counts results by status. Elapsed is left for the caller.
func Summarize(results []core.BatchResult) Summary {
	s := Summary{Total: len(results)}
	var sum float64
	var scored int
	for i := range results {
		r := &results[i]
		switch r.Status() {
		case core.BatchStatusOK:
			s.Succeeded++
		case core.BatchStatusDegraded:
			s.Degraded++
		default:
			s.Failed++
		}
		if top := r.Top(); top != nil {
			sum += float64(top.Score)
			scored++
		}
	}
	if scored > 0 {
		s.AvgTopScore = sum / float64(scored)
	}
	return s
}

// SuccessRate returns the share of jobs that did not fail outright.
func (s Summary) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Succeeded+s.Degraded) / float64(s.Total)
}
