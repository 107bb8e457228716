package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/metrics"
)

type fakeSearcher struct {
	lastQuery  string
	lastParams query.Params
	err        error
}

func (f *fakeSearcher) Search(_ context.Context, root *query.Node, params query.Params) (*executor.SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastQuery = root.String()
	f.lastParams = params
	return &executor.SearchResult{
		Query:     root.String(),
		TotalHits: 1,
		Results:   []ranker.ScoredDoc{{DocID: "d1", Score: -1.5}},
	}, nil
}

type fakeExpansion struct {
	result *feedback.Result
	calls  int
}

func (f *fakeExpansion) Expand(context.Context, *query.Node, query.Params) *feedback.Result {
	f.calls++
	return f.result
}

func get(t *testing.T, h *Handler, target string) (*httptest.ResponseRecorder, executor.SearchResult) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body executor.SearchResult
	if rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
	}
	return rec, body
}

func TestSearchWithoutExpansion(t *testing.T) {
	s := &fakeSearcher{}
	h := New(s, nil, nil, nil, nil, Config{DefaultLimit: 10, MaxResults: 50})

	rec, body := get(t, h, "/api/v1/search?q=Apple+Pie&limit=500")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if s.lastQuery != "#combine(apple pie)" {
		t.Errorf("searched %q", s.lastQuery)
	}
	if s.lastParams[query.ParamRequested] != 50 {
		t.Errorf("requested = %v, want the 50 cap", s.lastParams[query.ParamRequested])
	}
	if body.Expanded || len(body.Results) != 1 {
		t.Errorf("body = %+v", body)
	}
}

func TestSearchExpanded(t *testing.T) {
	s := &fakeSearcher{}
	expanded := query.Combine([]*query.Node{query.Term("apple"), query.Term("fruit")}, []float64{0.5, 0.5})
	model := &fakeExpansion{result: &feedback.Result{
		Query: expanded,
		State: feedback.StateDone,
		Terms: []feedback.WeightedTerm{{Term: "fruit", Weight: 1}},
	}}
	m := metrics.New(prometheus.NewRegistry())
	h := New(s, model, nil, nil, m, Config{ExpandByDefault: true})

	rec, body := get(t, h, "/api/v1/search?q=apple&fbDocs=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if s.lastQuery != expanded.String() {
		t.Errorf("searched %q, want the expanded query", s.lastQuery)
	}
	if !body.Expanded || len(body.ExpansionTerms) != 1 {
		t.Errorf("body = %+v", body)
	}
	if got := testutil.ToFloat64(m.ExpansionsTotal.WithLabelValues("expanded")); got != 1 {
		t.Errorf("expanded counter = %v", got)
	}
}

func TestSearchFallsBackOnRecoverableFailure(t *testing.T) {
	s := &fakeSearcher{}
	model := &fakeExpansion{result: &feedback.Result{
		State:    feedback.StateFailed,
		FailedAt: feedback.StateParamsValidated,
		Err:      apperrors.ErrEmptyFeedbackSet,
	}}
	h := New(s, model, nil, nil, nil, Config{})

	rec, body := get(t, h, "/api/v1/search?q=zebra&expand=true")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if s.lastQuery != "#combine(zebra)" || body.Expanded {
		t.Errorf("searched %q expanded=%v", s.lastQuery, body.Expanded)
	}
}

func TestSearchFatalExpansionFailure(t *testing.T) {
	model := &fakeExpansion{result: &feedback.Result{
		State: feedback.StateFailed,
		Err:   apperrors.ErrEngineClosed,
	}}
	h := New(&fakeSearcher{}, model, nil, nil, nil, Config{})

	rec, _ := get(t, h, "/api/v1/search?q=apple&expand=1")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestSearchExpandDisabledPerRequest(t *testing.T) {
	model := &fakeExpansion{result: &feedback.Result{State: feedback.StateDone}}
	h := New(&fakeSearcher{}, model, nil, nil, nil, Config{ExpandByDefault: true})
	if rec, _ := get(t, h, "/api/v1/search?q=apple&expand=false"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if model.calls != 0 {
		t.Errorf("expansion ran %d times", model.calls)
	}
}

func TestSearchBadRequests(t *testing.T) {
	h := New(&fakeSearcher{}, nil, nil, nil, nil, Config{})
	for _, target := range []string{
		"/api/v1/search",
		"/api/v1/search?q=apple&limit=0",
		"/api/v1/search?q=apple&expand=maybe",
		"/api/v1/search?q=apple&fbDocs=ten",
		"/api/v1/search?q=%23bogus(apple)",
		"/api/v1/search?q=%23combine(apple",
	} {
		if rec, _ := get(t, h, target); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestSearchEngineError(t *testing.T) {
	h := New(&fakeSearcher{err: apperrors.ErrEngineClosed}, nil, nil, nil, nil, Config{})
	if rec, _ := get(t, h, "/api/v1/search?q=apple"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestCacheEndpointsWithoutCache(t *testing.T) {
	h := New(&fakeSearcher{}, nil, nil, nil, nil, Config{})

	rec := httptest.NewRecorder()
	h.CacheStats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("stats status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.CacheInvalidate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("invalidate status = %d", rec.Code)
	}
}
