package ranker

import (
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/query"
)

type ScoredDoc struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

// CollectionStats describes the whole index.
type CollectionStats struct {
	TotalDocs        int64
	CollectionLength int64
	AvgDocLength     float64
}

// TermStats describes one index term across the collection.
type TermStats struct {
	CorpusFrequency   int64
	DocumentFrequency int64
}

// Leaf is the data needed to score one index term: its statistics and its
// frequency in every document that contains it.
type Leaf struct {
	Stats TermStats
	Freqs map[string]int
}

// Rank scores every candidate document against the query tree. Leaves that
// never occur in the collection contribute nothing and are left out of
// their parent's weight normalization. The result is unordered.
func Rank(
	root *query.Node,
	leaves map[string]Leaf,
	candidates []string,
	docLength func(docID string) int,
	coll CollectionStats,
	scorer Scorer,
) []ScoredDoc {
	result := make([]ScoredDoc, 0, len(candidates))
	for _, docID := range candidates {
		score, ok := scoreNode(root, docID, docLength(docID), leaves, coll, scorer)
		if !ok {
			continue
		}
		result = append(result, ScoredDoc{DocID: docID, Score: score})
	}
	return result
}

func scoreNode(
	n *query.Node,
	docID string,
	docLen int,
	leaves map[string]Leaf,
	coll CollectionStats,
	scorer Scorer,
) (float64, bool) {
	if n.IsLeaf() {
		leaf, ok := leaves[n.Term]
		if !ok || leaf.Stats.CorpusFrequency == 0 {
			return 0, false
		}
		return scorer.Score(leaf.Freqs[docID], docLen, leaf.Stats, coll), true
	}
	var sum, totalWeight float64
	for i, child := range n.Children {
		w := n.Weight(i)
		s, ok := scoreNode(child, docID, docLen, leaves, coll, scorer)
		if !ok {
			continue
		}
		sum += w * s
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0, false
	}
	return sum / totalWeight, true
}
