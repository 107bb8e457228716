package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/kafka"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func TestNewExpansionEvent(t *testing.T) {
	ok := &feedback.Result{
		Query:      query.Term("x"),
		State:      feedback.StateDone,
		Params:     feedback.Parameters{FbDocs: 10, FbTerm: 2},
		Terms:      []feedback.WeightedTerm{{Term: "a", Weight: 0.6}},
		Iterations: 7,
		Converged:  true,
	}
	ev := NewExpansionEvent("run", "q1", "x", ok, 3*time.Millisecond)
	if ev.Outcome != OutcomeExpanded || ev.FbDocs != 10 || ev.Iterations != 7 || ev.LatencyMs != 3 {
		t.Errorf("unexpected event %+v", ev)
	}

	failed := &feedback.Result{
		State:    feedback.StateFailed,
		FailedAt: feedback.StateParamsValidated,
		Err:      apperrors.ErrEmptyFeedbackSet,
	}
	ev = NewExpansionEvent("run", "q2", "y", failed, 0)
	if ev.Outcome != OutcomeFellBack || ev.FailedAt != "params_validated" || ev.Error == "" {
		t.Errorf("unexpected event %+v", ev)
	}

	if ev := NewExpansionEvent("run", "q3", "z", nil, 0); ev.Outcome != OutcomeSkipped {
		t.Errorf("nil result outcome = %s", ev.Outcome)
	}
}

func TestCollectorPublishesOnClose(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, 10)
	c.Start(context.Background())
	c.TrackExpansion(ExpansionEvent{Type: EventExpansion, QueryID: "q1"})
	c.Track(SearchEvent{Type: EventSearch, Query: "apple"})
	c.Close()
	c.Close()

	if len(pub.events) != 2 {
		t.Fatalf("published %d events, want 2", len(pub.events))
	}
	if pub.events[0].Key != "q1" || pub.events[1].Key != string(EventSearch) {
		t.Errorf("keys = %q, %q", pub.events[0].Key, pub.events[1].Key)
	}
}

func TestCollectorDropsWhenFull(t *testing.T) {
	c := NewCollector(&recordingPublisher{}, 1)
	c.Track(SearchEvent{Query: "a"})
	c.Track(SearchEvent{Query: "b"})
	if len(c.queue) != 1 || c.Dropped() != 1 {
		t.Errorf("queued %d events, dropped %d", len(c.queue), c.Dropped())
	}
}

func encode(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestAggregatorHandleEvent(t *testing.T) {
	agg := NewAggregator(nil)
	handle := HandleEvent(agg)
	ctx := context.Background()
	messages := [][]byte{
		encode(t, ExpansionEvent{Type: EventExpansion, Outcome: OutcomeExpanded, Iterations: 4, Converged: true,
			Terms: []feedback.WeightedTerm{{Term: "apple", Weight: 0.5}, {Term: "pie", Weight: 0.2}}}),
		encode(t, ExpansionEvent{Type: EventExpansion, Outcome: OutcomeExpanded, Iterations: 100,
			Terms: []feedback.WeightedTerm{{Term: "apple", Weight: 0.4}}}),
		encode(t, ExpansionEvent{Type: EventExpansion, Outcome: OutcomeFellBack, FailedAt: "params_validated"}),
		encode(t, ExpansionEvent{Type: EventExpansion, Outcome: OutcomeSkipped}),
		encode(t, SearchEvent{Type: EventSearch, Query: "apple", TotalHits: 3}),
		encode(t, SearchEvent{Type: EventZeroResult, Query: "zzz"}),
		[]byte("not json"),
		encode(t, map[string]string{"type": "mystery"}),
	}
	for _, m := range messages {
		if err := handle(ctx, nil, m); err != nil {
			t.Fatalf("handler error: %v", err)
		}
	}

	stats := agg.Stats()
	if stats.TotalExpansions != 3 || stats.Expanded != 2 || stats.FellBack != 1 || stats.NonConverged != 1 {
		t.Errorf("expansion counts = %+v", stats)
	}
	if stats.FailuresByState["params_validated"] != 1 {
		t.Errorf("FailuresByState = %v", stats.FailuresByState)
	}
	if stats.AvgIterations != 104.0/3 {
		t.Errorf("AvgIterations = %v", stats.AvgIterations)
	}
	if len(stats.TopExpansionTerms) == 0 || stats.TopExpansionTerms[0] != (QueryCount{Query: "apple", Count: 2}) {
		t.Errorf("TopExpansionTerms = %v", stats.TopExpansionTerms)
	}
	if stats.TotalSearches != 2 || stats.ZeroResultCount != 1 {
		t.Errorf("search counts: total=%d zero=%d", stats.TotalSearches, stats.ZeroResultCount)
	}
}

func TestHandlerExpansions(t *testing.T) {
	agg := NewAggregator(nil)
	agg.RecordExpansion(ExpansionEvent{Outcome: OutcomeFellBack, FailedAt: "init"})
	agg.RecordExpansion(ExpansionEvent{Outcome: OutcomeExpanded, Iterations: 2, Converged: true})

	rec := httptest.NewRecorder()
	NewHandler(agg).Expansions(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/expansions", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["fallback_rate"] != 0.5 || body["total"] != float64(2) {
		t.Errorf("body = %v", body)
	}
}

func TestHandlerTerms(t *testing.T) {
	agg := NewAggregator(nil)
	for _, term := range []string{"fruit", "fruit", "tart"} {
		agg.RecordExpansion(ExpansionEvent{Outcome: OutcomeExpanded, Terms: []feedback.WeightedTerm{{Term: term, Weight: 1}}})
	}
	h := NewHandler(agg)

	rec := httptest.NewRecorder()
	h.Terms(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/terms?limit=1", nil))
	var body struct {
		Terms []QueryCount `json:"terms"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Terms) != 1 || body.Terms[0] != (QueryCount{Query: "fruit", Count: 2}) {
		t.Errorf("terms = %v", body.Terms)
	}

	rec = httptest.NewRecorder()
	h.Terms(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/terms?limit=-3", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestExpansionEventErrorText(t *testing.T) {
	ev := NewExpansionEvent("", "q", "x", &feedback.Result{
		State: feedback.StateFailed,
		Err:   errors.New("boom"),
	}, 0)
	if ev.Error != "boom" {
		t.Errorf("Error = %q", ev.Error)
	}
}

func TestConsumerCheck(t *testing.T) {
	got := NewAggregator(nil).ConsumerCheck(100)(context.Background())
	if got.Status != health.StatusDegraded || got.Message == "" {
		t.Errorf("check without a consumer = %+v", got)
	}

	tests := []struct {
		name     string
		fetchErr error
		lag      int64
		maxLag   int64
		want     health.Status
	}{
		{"caught up", nil, 3, 100, health.StatusUp},
		{"lagging", nil, 101, 100, health.StatusDegraded},
		{"unbounded", nil, 1 << 40, 0, health.StatusUp},
		{"fetch failing", errors.New("broker down"), 0, 100, health.StatusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := consumerHealth(tt.fetchErr, tt.lag, tt.maxLag); got.Status != tt.want {
				t.Errorf("status = %s (%s), want %s", got.Status, got.Message, tt.want)
			}
		})
	}
}
