package feedback

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/errors"
)

// fakeRetrieval serves a fixed ranking and counts statistics lookups.
type fakeRetrieval struct {
	docs             map[string][]string
	ranking          []ranker.ScoredDoc
	corpusFreq       map[string]int64
	collectionLength int64
	executeErr       error

	collectionCalls int
	termCalls       map[string]int
	executed        []query.Params
	roots           []*query.Node
}

func newFakeRetrieval() *fakeRetrieval {
	return &fakeRetrieval{
		docs: map[string][]string{
			"d1": {"the", "apples", "apple", "pie"},
			"d2": {"apple", "tart", "and", "crust"},
			"d3": {"banana"},
		},
		ranking: []ranker.ScoredDoc{
			{DocID: "d1", Score: -1},
			{DocID: "d2", Score: -2},
			{DocID: "d3", Score: -3},
		},
		corpusFreq: map[string]int64{
			"apple": 40, "pie": 5, "tart": 2, "crust": 3, "banana": 50,
		},
		collectionLength: 10000,
		termCalls:        make(map[string]int),
	}
}

func (f *fakeRetrieval) TransformQuery(_ context.Context, root *query.Node, _ query.Params) (*query.Node, error) {
	return root.Clone(), nil
}

// ExecuteQuery honours requested the way the executor does: a value on the
// root node wins over the call's params.
func (f *fakeRetrieval) ExecuteQuery(_ context.Context, root *query.Node, params query.Params) ([]ranker.ScoredDoc, error) {
	f.executed = append(f.executed, params)
	f.roots = append(f.roots, root)
	if f.executeErr != nil {
		return nil, f.executeErr
	}
	n, ok := root.Params.Int(query.ParamRequested)
	if !ok {
		n, ok = params.Int(query.ParamRequested)
	}
	if !ok || n > len(f.ranking) {
		n = len(f.ranking)
	}
	return append([]ranker.ScoredDoc(nil), f.ranking[:n]...), nil
}

func (f *fakeRetrieval) CollectionStatistics(context.Context) (CollectionStats, error) {
	f.collectionCalls++
	return CollectionStats{CollectionLength: f.collectionLength, DocumentCount: int64(len(f.docs))}, nil
}

func (f *fakeRetrieval) TermStatistics(_ context.Context, term string) (TermStats, error) {
	f.termCalls[term]++
	return TermStats{Term: term, CorpusFrequency: f.corpusFreq[term]}, nil
}

func (f *fakeRetrieval) DocumentTerms(_ context.Context, docID string) ([]string, error) {
	words, ok := f.docs[docID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", docID, apperrors.ErrDocumentNotFound)
	}
	return words, nil
}

// suffixStemmer strips a trailing "s".
type suffixStemmer struct{}

func (suffixStemmer) Stem(word string) string {
	if len(word) > 3 && word[len(word)-1] == 's' {
		return word[:len(word)-1]
	}
	return word
}

type wordSet map[string]bool

func (s wordSet) IsExcluded(word string) bool { return s[word] }
