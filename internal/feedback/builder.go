package feedback

import "github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/query"

// ExpansionQuery is the weighted set of terms added to a query.
type ExpansionQuery struct {
	Terms []WeightedTerm
}

// BuildExpansion keeps the first fbTerm terms of an already sorted list.
// Weights are not renormalized.
func BuildExpansion(terms []WeightedTerm, fbTerm int) ExpansionQuery {
	k := fbTerm
	if k < 0 {
		k = 0
	}
	if k > len(terms) {
		k = len(terms)
	}
	return ExpansionQuery{Terms: append([]WeightedTerm(nil), terms[:k]...)}
}

// Node renders the expansion as a #combine over analyzed term leaves,
// weighted by term weight.
func (q ExpansionQuery) Node() *query.Node {
	children := make([]*query.Node, len(q.Terms))
	weights := make([]float64, len(q.Terms))
	for i, t := range q.Terms {
		children[i] = query.Term(t.Term)
		weights[i] = t.Weight
	}
	return query.Combine(children, weights)
}
