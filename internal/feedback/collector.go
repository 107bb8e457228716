package feedback

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/errors"
)

// TermCounts holds per-document occurrence counts of feedback terms. Terms
// keep the order in which they were first seen.
type TermCounts struct {
	order  []string
	counts map[string]map[string]int
	totals map[string]int
}

func NewTermCounts() *TermCounts {
	return &TermCounts{
		counts: make(map[string]map[string]int),
		totals: make(map[string]int),
	}
}

// Add records n more occurrences of term in docID.
func (tc *TermCounts) Add(term, docID string, n int) {
	docs, ok := tc.counts[term]
	if !ok {
		docs = make(map[string]int)
		tc.counts[term] = docs
		tc.order = append(tc.order, term)
	}
	docs[docID] += n
	tc.totals[term] += n
}

// Terms returns the distinct terms in first-seen order.
func (tc *TermCounts) Terms() []string {
	return append([]string(nil), tc.order...)
}

func (tc *TermCounts) Len() int {
	return len(tc.order)
}

// Frequency is the total count of term over all feedback documents.
func (tc *TermCounts) Frequency(term string) int {
	return tc.totals[term]
}

// Count is the count of term in one document.
func (tc *TermCounts) Count(term, docID string) int {
	return tc.counts[term][docID]
}

// CollectTermCounts counts the terms of every feedback document, in rank
// order. Excluded words are dropped whether they match in surface or
// stemmed form.
func CollectTermCounts(
	ctx context.Context,
	docs DocumentSource,
	feedback []ranker.ScoredDoc,
	exclusion tokenizer.Excluder,
	stemmer tokenizer.Stemmer,
) (*TermCounts, error) {
	if len(feedback) == 0 {
		return nil, apperrors.ErrEmptyFeedbackSet
	}
	counts := NewTermCounts()
	for _, doc := range feedback {
		words, err := docs.DocumentTerms(ctx, doc.DocID)
		if err != nil {
			return nil, fmt.Errorf("reading feedback document %s: %w", doc.DocID, err)
		}
		for _, word := range words {
			if excluded(exclusion, word) {
				continue
			}
			term := tokenizer.Stem(stemmer, word)
			if term == "" || (term != word && excluded(exclusion, term)) {
				continue
			}
			counts.Add(term, doc.DocID, 1)
		}
	}
	return counts, nil
}

func excluded(exclusion tokenizer.Excluder, word string) bool {
	return exclusion != nil && exclusion.IsExcluded(word)
}

// BackgroundStats gives the collection probability of each feedback term.
type BackgroundStats struct {
	CollectionLength int64
	corpusFreq       map[string]int64
}

// NewBackgroundStats returns ErrDegenerateInput unless collectionLength is
// positive.
func NewBackgroundStats(collectionLength int64, corpusFreq map[string]int64) (*BackgroundStats, error) {
	if collectionLength <= 0 {
		return nil, fmt.Errorf("%w: collection length %d", apperrors.ErrDegenerateInput, collectionLength)
	}
	if corpusFreq == nil {
		corpusFreq = make(map[string]int64)
	}
	return &BackgroundStats{CollectionLength: collectionLength, corpusFreq: corpusFreq}, nil
}

func (bg *BackgroundStats) CorpusFrequency(term string) int64 {
	return bg.corpusFreq[term]
}

// PWC is the probability of term under the collection language model. An
// unseen term has probability 0.
func (bg *BackgroundStats) PWC(term string) float64 {
	cf := bg.corpusFreq[term]
	if cf == 0 {
		return 0
	}
	return float64(cf) / float64(bg.CollectionLength)
}

// CollectBackgroundStats looks the collection length up once and every
// distinct term once.
func CollectBackgroundStats(ctx context.Context, stats StatisticsSource, terms []string) (*BackgroundStats, error) {
	coll, err := stats.CollectionStatistics(ctx)
	if err != nil {
		return nil, fmt.Errorf("collection statistics: %w", err)
	}
	corpusFreq := make(map[string]int64, len(terms))
	for _, term := range terms {
		if _, done := corpusFreq[term]; done {
			continue
		}
		ts, err := stats.TermStatistics(ctx, term)
		if err != nil {
			return nil, fmt.Errorf("term statistics for %q: %w", term, err)
		}
		corpusFreq[term] = ts.CorpusFrequency
	}
	return NewBackgroundStats(coll.CollectionLength, corpusFreq)
}
