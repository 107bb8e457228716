// Package feedback implements pseudo-relevance feedback query expansion
// with a two-component mixture model: feedback documents are assumed to be
// drawn from an unknown topic model mixed with the collection background,
// and an EM fixed point estimates how much of each term's feedback
// frequency the topic model explains.
package feedback

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/ranker"
)

// CollectionStats are the aggregate statistics of the searched collection.
type CollectionStats struct {
	CollectionLength int64
	DocumentCount    int64
}

// TermStats are the collection statistics of one analyzed term.
type TermStats struct {
	Term            string
	CorpusFrequency int64
}

// StatisticsSource answers background statistics lookups.
type StatisticsSource interface {
	CollectionStatistics(ctx context.Context) (CollectionStats, error)
	TermStatistics(ctx context.Context, term string) (TermStats, error)
}

// DocumentSource returns the lowercased surface words of a document.
type DocumentSource interface {
	DocumentTerms(ctx context.Context, docID string) ([]string, error)
}

// Retrieval is the search engine handle the expansion borrows. It is owned
// and closed by whoever created it, never by this package.
type Retrieval interface {
	StatisticsSource
	DocumentSource
	// TransformQuery compiles a query into engine terms. It must be called
	// before ExecuteQuery.
	TransformQuery(ctx context.Context, root *query.Node, params query.Params) (*query.Node, error)
	// ExecuteQuery returns at most params[requested] documents, best first.
	ExecuteQuery(ctx context.Context, root *query.Node, params query.Params) ([]ranker.ScoredDoc, error)
}
