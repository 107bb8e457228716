// Package merger keeps the best k scored documents of one or more rankings.
package merger

import (
	"container/heap"
	"math"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/ranker"
)

// DefaultK applies when a non-positive k is requested.
const DefaultK = 10

// TopK accumulates scored documents and retains the k best. Equal scores
// are broken by ascending DocID so rankings are reproducible. A NaN score
// ranks below every number.
type TopK struct {
	k    int
	heap worstFirst
}

func NewTopK(k int) *TopK {
	if k <= 0 {
		k = DefaultK
	}
	return &TopK{k: k, heap: make(worstFirst, 0, k+1)}
}

// Offer considers doc for the result.
func (t *TopK) Offer(doc ranker.ScoredDoc) {
	if len(t.heap) == t.k {
		if !better(doc, t.heap[0]) {
			return
		}
		t.heap[0] = doc
		heap.Fix(&t.heap, 0)
		return
	}
	heap.Push(&t.heap, doc)
}

func (t *TopK) Len() int { return len(t.heap) }

// Results drains the collector, best document first.
func (t *TopK) Results() []ranker.ScoredDoc {
	out := make([]ranker.ScoredDoc, len(t.heap))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&t.heap).(ranker.ScoredDoc)
	}
	return out
}

func better(a, b ranker.ScoredDoc) bool {
	an, bn := math.IsNaN(a.Score), math.IsNaN(b.Score)
	switch {
	case an != bn:
		return bn
	case !an && a.Score != b.Score:
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}

// worstFirst is a min-heap under better: the root is the document that is
// evicted next.
type worstFirst []ranker.ScoredDoc

func (h worstFirst) Len() int           { return len(h) }
func (h worstFirst) Less(i, j int) bool { return better(h[j], h[i]) }
func (h worstFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *worstFirst) Push(x any) {
	*h = append(*h, x.(ranker.ScoredDoc))
}

func (h *worstFirst) Pop() any {
	old := *h
	doc := old[len(old)-1]
	*h = old[:len(old)-1]
	return doc
}
