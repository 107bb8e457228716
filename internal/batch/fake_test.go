package batch

import (
	"context"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/runlog"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/ranker"
)

// termRetrieval scores a document by the number of query terms it contains.
type termRetrieval struct {
	docs       map[string][]string
	executed   []string
	executeErr error
}

func newTermRetrieval() *termRetrieval {
	return &termRetrieval{docs: map[string][]string{
		"d1": {"apple", "pie", "crust"},
		"d2": {"apple", "orchard", "harvest"},
		"d3": {"banana", "bread", "walnut"},
		"d4": {"cherry", "tart", "crust"},
	}}
}

func (f *termRetrieval) TransformQuery(_ context.Context, root *query.Node, _ query.Params) (*query.Node, error) {
	out := root.Clone()
	out.Walk(func(n *query.Node) {
		if n.Operator == query.OpText {
			n.Operator = query.OpTerm
		}
	})
	if out.IsLeaf() {
		out = query.Combine([]*query.Node{out}, nil)
	}
	return out, nil
}

func (f *termRetrieval) ExecuteQuery(_ context.Context, root *query.Node, params query.Params) ([]ranker.ScoredDoc, error) {
	if f.executeErr != nil {
		return nil, f.executeErr
	}
	f.executed = append(f.executed, root.String())
	terms := make(map[string]bool)
	for _, t := range root.Terms() {
		terms[t] = true
	}
	var docs []ranker.ScoredDoc
	for id, words := range f.docs {
		score := 0.0
		for _, w := range words {
			if terms[w] {
				score++
			}
		}
		if score > 0 {
			docs = append(docs, ranker.ScoredDoc{DocID: id, Score: score})
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		return docs[i].DocID < docs[j].DocID
	})
	if n, ok := params.Int(query.ParamRequested); ok && n < len(docs) {
		docs = docs[:n]
	}
	return docs, nil
}

func (f *termRetrieval) CollectionStatistics(context.Context) (feedback.CollectionStats, error) {
	return feedback.CollectionStats{CollectionLength: 12, DocumentCount: int64(len(f.docs))}, nil
}

func (f *termRetrieval) TermStatistics(_ context.Context, term string) (feedback.TermStats, error) {
	var cf int64
	for _, words := range f.docs {
		for _, w := range words {
			if w == term {
				cf++
			}
		}
	}
	return feedback.TermStats{Term: term, CorpusFrequency: cf}, nil
}

func (f *termRetrieval) DocumentTerms(_ context.Context, docID string) ([]string, error) {
	return f.docs[docID], nil
}

type recordingSink struct {
	records []runlog.Record
}

func (s *recordingSink) Record(_ context.Context, rec runlog.Record) error {
	s.records = append(s.records, rec)
	return nil
}
