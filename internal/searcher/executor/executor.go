package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/tracing"
)

// DefaultRequested is the result depth when a query names none.
const DefaultRequested = 1000

type SearchResult struct {
	Query          string                  `json:"query"`
	TotalHits      int                     `json:"total_hits"`
	Results        []ranker.ScoredDoc      `json:"results"`
	TermStats      map[string]int64        `json:"term_stats"`
	Expanded       bool                    `json:"expanded"`
	ExpansionTerms []feedback.WeightedTerm `json:"expansion_terms,omitempty"`
}

// Executor runs structured queries against one engine. It implements
// feedback.Retrieval.
type Executor struct {
	engine   *indexer.Engine
	analyzer tokenizer.Analyzer
	scorer   ranker.Scorer
	logger   *slog.Logger
}

func New(engine *indexer.Engine, scorer ranker.Scorer) *Executor {
	return &Executor{
		engine:   engine,
		analyzer: engine.Analyzer(),
		scorer:   scorer,
		logger:   slog.Default().With("component", "query-executor"),
	}
}

// Open creates the engine described by cfg and an executor over it. The
// caller owns the engine and must close it.
func Open(cfg *config.Config) (*Executor, *indexer.Engine, error) {
	analyzer, err := indexer.NewAnalyzer(cfg.Indexer)
	if err != nil {
		return nil, nil, fmt.Errorf("building analyzer: %w", err)
	}
	scorer, err := ranker.NewScorer(cfg.Search.Scorer, cfg.Search.Mu, cfg.Search.K1, cfg.Search.B)
	if err != nil {
		return nil, nil, err
	}
	engine, err := indexer.NewEngine(cfg.Indexer, analyzer)
	if err != nil {
		return nil, nil, fmt.Errorf("opening index: %w", err)
	}
	return New(engine, scorer), engine, nil
}

// TransformQuery analyzes every text leaf into index terms. Leaves that
// analyze to nothing are removed together with their weights.
func (e *Executor) TransformQuery(_ context.Context, root *query.Node, _ query.Params) (*query.Node, error) {
	if e.engine.Closed() {
		return nil, apperrors.ErrEngineClosed
	}
	out := e.transform(root)
	if out == nil {
		out = query.Combine(nil, nil)
	}
	if out.IsLeaf() {
		out = query.Combine([]*query.Node{out}, nil)
	}
	out.Params = root.Params.Clone()
	return out, nil
}

func (e *Executor) transform(n *query.Node) *query.Node {
	switch n.Operator {
	case query.OpTerm:
		return query.Term(n.Term)
	case query.OpText:
		tokens := e.analyzer.Analyze(n.Term)
		switch len(tokens) {
		case 0:
			return nil
		case 1:
			return query.Term(tokens[0].Term)
		}
		children := make([]*query.Node, len(tokens))
		for i, tok := range tokens {
			children[i] = query.Term(tok.Term)
		}
		return query.Combine(children, nil)
	}
	out := &query.Node{Operator: n.Operator, Params: n.Params.Clone()}
	for i, child := range n.Children {
		c := e.transform(child)
		if c == nil {
			continue
		}
		out.Children = append(out.Children, c)
		if n.Weights != nil {
			out.Weights = append(out.Weights, n.Weights[i])
		}
	}
	if len(out.Children) == 0 {
		return nil
	}
	return out
}

// ExecuteQuery ranks every document containing at least one query term and
// returns the best params[requested] of them.
func (e *Executor) ExecuteQuery(ctx context.Context, root *query.Node, params query.Params) ([]ranker.ScoredDoc, error) {
	res, err := e.execute(ctx, root, params)
	if err != nil {
		return nil, err
	}
	return res.Results, nil
}

// Search transforms and executes root, reporting hit counts and term
// statistics alongside the ranking.
func (e *Executor) Search(ctx context.Context, root *query.Node, params query.Params) (*SearchResult, error) {
	transformed, err := e.TransformQuery(ctx, root, params)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, transformed, params)
}

func (e *Executor) execute(ctx context.Context, root *query.Node, params query.Params) (*SearchResult, error) {
	if e.engine.Closed() {
		return nil, apperrors.ErrEngineClosed
	}
	requested := DefaultRequested
	if v, ok := root.Params.Int(query.ParamRequested); ok {
		requested = v
	} else if v, ok := params.Int(query.ParamRequested); ok {
		requested = v
	}

	leaves := make(map[string]ranker.Leaf)
	termStats := make(map[string]int64)
	candidateSet := make(map[string]struct{})
	for _, term := range root.Terms() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		postings, err := e.engine.Postings(term)
		if err != nil {
			return nil, fmt.Errorf("searching term %q: %w", term, err)
		}
		stats, err := e.engine.TermStatistics(term)
		if err != nil {
			return nil, fmt.Errorf("term statistics for %q: %w", term, err)
		}
		freqs := make(map[string]int, len(postings))
		for _, p := range postings {
			freqs[p.DocID] = p.Frequency
			candidateSet[p.DocID] = struct{}{}
		}
		leaves[term] = ranker.Leaf{
			Stats: ranker.TermStats{
				CorpusFrequency:   stats.CorpusFrequency,
				DocumentFrequency: stats.DocumentFrequency,
			},
			Freqs: freqs,
		}
		termStats[term] = stats.CorpusFrequency
	}

	candidates := make([]string, 0, len(candidateSet))
	for docID := range candidateSet {
		candidates = append(candidates, docID)
	}
	sort.Strings(candidates)

	coll := ranker.CollectionStats{
		TotalDocs:        e.engine.DocumentCount(),
		CollectionLength: e.engine.CollectionLength(),
		AvgDocLength:     e.engine.AvgDocLength(),
	}
	scored := ranker.Rank(root, leaves, candidates, e.engine.DocLength, coll, e.scorerFor(root, params))
	top := merger.NewTopK(requested)
	for _, doc := range scored {
		top.Offer(doc)
	}
	ranked := top.Results()
	if span := tracing.SpanFromContext(ctx); span != nil {
		span.SetAttr("candidates", len(candidates))
		span.SetAttr("requested", requested)
	}

	e.logger.Debug("query executed",
		"query", root.String(),
		"candidates", len(candidates),
		"results", len(ranked),
	)
	return &SearchResult{
		Query:     root.String(),
		TotalHits: len(candidates),
		Results:   ranked,
		TermStats: termStats,
	}, nil
}

// scorerFor applies a mu parameter to Dirichlet scoring.
func (e *Executor) scorerFor(root *query.Node, params query.Params) ranker.Scorer {
	d, ok := e.scorer.(ranker.Dirichlet)
	if !ok {
		return e.scorer
	}
	if mu, ok := root.Params.Float(query.ParamMu); ok && mu > 0 {
		d.Mu = mu
	} else if mu, ok := params.Float(query.ParamMu); ok && mu > 0 {
		d.Mu = mu
	}
	return d
}

func (e *Executor) CollectionStatistics(_ context.Context) (feedback.CollectionStats, error) {
	if e.engine.Closed() {
		return feedback.CollectionStats{}, apperrors.ErrEngineClosed
	}
	return feedback.CollectionStats{
		CollectionLength: e.engine.CollectionLength(),
		DocumentCount:    e.engine.DocumentCount(),
	}, nil
}

func (e *Executor) TermStatistics(_ context.Context, term string) (feedback.TermStats, error) {
	stats, err := e.engine.TermStatistics(term)
	if err != nil {
		return feedback.TermStats{}, err
	}
	return feedback.TermStats{Term: term, CorpusFrequency: stats.CorpusFrequency}, nil
}

func (e *Executor) DocumentTerms(ctx context.Context, docID string) ([]string, error) {
	return e.engine.DocumentTerms(ctx, docID)
}

var _ feedback.Retrieval = (*Executor)(nil)
