package feedback

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/errors"
)

func TestCollectTermCounts(t *testing.T) {
	f := newFakeRetrieval()
	counts, err := CollectTermCounts(context.Background(), f, f.ranking[:2], wordSet{"the": true, "and": true}, suffixStemmer{})
	if err != nil {
		t.Fatal(err)
	}
	if got := counts.Terms(); !reflect.DeepEqual(got, []string{"apple", "pie", "tart", "crust"}) {
		t.Errorf("Terms() = %v", got)
	}
	if counts.Frequency("apple") != 3 || counts.Count("apple", "d1") != 2 || counts.Count("apple", "d2") != 1 {
		t.Errorf("apple counts: total=%d d1=%d d2=%d",
			counts.Frequency("apple"), counts.Count("apple", "d1"), counts.Count("apple", "d2"))
	}
	if counts.Frequency("the") != 0 {
		t.Error("stop word was counted")
	}
}

func TestCollectTermCountsExcludesStemmedForm(t *testing.T) {
	f := newFakeRetrieval()
	counts, err := CollectTermCounts(context.Background(), f, f.ranking[:1], wordSet{"apple": true}, suffixStemmer{})
	if err != nil {
		t.Fatal(err)
	}
	if counts.Frequency("apple") != 0 {
		t.Errorf("apple counted %d times despite exclusion", counts.Frequency("apple"))
	}
}

func TestCollectTermCountsEmpty(t *testing.T) {
	f := newFakeRetrieval()
	_, err := CollectTermCounts(context.Background(), f, nil, nil, nil)
	if !errors.Is(err, apperrors.ErrEmptyFeedbackSet) {
		t.Errorf("error = %v, want ErrEmptyFeedbackSet", err)
	}
}

func TestCollectTermCountsMissingDocument(t *testing.T) {
	f := newFakeRetrieval()
	_, err := CollectTermCounts(context.Background(), f, []ranker.ScoredDoc{{DocID: "nope"}}, nil, nil)
	if !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Errorf("error = %v, want ErrDocumentNotFound", err)
	}
	if IsRecoverable(err) {
		t.Error("a missing document is not an expansion failure")
	}
}

func TestCollectBackgroundStatsLookups(t *testing.T) {
	f := newFakeRetrieval()
	bg, err := CollectBackgroundStats(context.Background(), f, []string{"apple", "pie", "apple", "unseen"})
	if err != nil {
		t.Fatal(err)
	}
	if f.collectionCalls != 1 {
		t.Errorf("collection statistics looked up %d times", f.collectionCalls)
	}
	for term, n := range f.termCalls {
		if n != 1 {
			t.Errorf("term %q looked up %d times", term, n)
		}
	}
	if got := bg.PWC("pie"); got != 0.0005 {
		t.Errorf("PWC(pie) = %v, want 0.0005", got)
	}
	if bg.PWC("unseen") != 0 {
		t.Error("unseen term should have zero probability")
	}
}

func TestCollectBackgroundStatsEmptyCollection(t *testing.T) {
	f := newFakeRetrieval()
	f.collectionLength = 0
	_, err := CollectBackgroundStats(context.Background(), f, []string{"apple"})
	if !errors.Is(err, apperrors.ErrDegenerateInput) {
		t.Errorf("error = %v, want ErrDegenerateInput", err)
	}
}
