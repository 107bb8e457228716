package analytics

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/feedback"
)

type EventType string

const (
	EventSearch     EventType = "search"
	EventExpansion  EventType = "expansion"
	EventZeroResult EventType = "zero_result"
)

// Expansion outcomes.
const (
	OutcomeExpanded = "expanded"
	OutcomeFellBack = "fell_back"
	OutcomeSkipped  = "skipped"
)

type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Terms     []string  `json:"terms"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Expanded  bool      `json:"expanded"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// ExpansionEvent describes one query expansion attempt.
type ExpansionEvent struct {
	Type       EventType               `json:"type"`
	RunID      string                  `json:"run_id,omitempty"`
	QueryID    string                  `json:"query_id"`
	Query      string                  `json:"query"`
	Outcome    string                  `json:"outcome"`
	FailedAt   string                  `json:"failed_at,omitempty"`
	Error      string                  `json:"error,omitempty"`
	FbDocs     int                     `json:"fb_docs"`
	FbTerm     int                     `json:"fb_term"`
	Terms      []feedback.WeightedTerm `json:"terms,omitempty"`
	Iterations int                     `json:"iterations"`
	Converged  bool                    `json:"converged"`
	LatencyMs  int64                   `json:"latency_ms"`
	Timestamp  time.Time               `json:"timestamp"`
}

// NewExpansionEvent summarizes an expansion result. A nil result means
// expansion was not attempted.
func NewExpansionEvent(runID, queryID, query string, res *feedback.Result, latency time.Duration) ExpansionEvent {
	ev := ExpansionEvent{
		Type:      EventExpansion,
		RunID:     runID,
		QueryID:   queryID,
		Query:     query,
		Outcome:   OutcomeSkipped,
		LatencyMs: latency.Milliseconds(),
		Timestamp: time.Now().UTC(),
	}
	if res == nil {
		return ev
	}
	ev.FbDocs = res.Params.FbDocs
	ev.FbTerm = res.Params.FbTerm
	ev.Terms = res.Terms
	ev.Iterations = res.Iterations
	ev.Converged = res.Converged
	if res.OK() {
		ev.Outcome = OutcomeExpanded
		return ev
	}
	ev.Outcome = OutcomeFellBack
	ev.FailedAt = res.FailedAt.String()
	if res.Err != nil {
		ev.Error = res.Err.Error()
	}
	return ev
}
