package feedback

import (
	"context"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/tracing"
)

// ExpansionModel rewrites a query using feedback from its own results.
type ExpansionModel interface {
	Expand(ctx context.Context, root *query.Node, params query.Params) *Result
}

// Result is the outcome of one expansion. On failure Query is nil, State is
// StateFailed and FailedAt names the last state reached.
type Result struct {
	Query      *query.Node
	State      State
	FailedAt   State
	Err        error
	Params     Parameters
	Terms      []WeightedTerm
	Iterations int
	Converged  bool
}

func (r *Result) OK() bool {
	return r.State == StateDone && r.Err == nil
}

// Recoverable reports whether the caller should fall back to the
// unexpanded query.
func (r *Result) Recoverable() bool {
	return r.Err == nil || IsRecoverable(r.Err)
}

// IsRecoverable reports whether err is an expansion failure local to one
// query. Anything else, such as a closed engine, is not.
func IsRecoverable(err error) bool {
	return errors.Is(err, apperrors.ErrInvalidParameter) ||
		errors.Is(err, apperrors.ErrEmptyFeedbackSet) ||
		errors.Is(err, apperrors.ErrMissingDefault) ||
		errors.Is(err, apperrors.ErrDegenerateInput) ||
		errors.Is(err, apperrors.ErrNonConvergence)
}

// Options configure a MixtureModel.
type Options struct {
	Defaults  Defaults
	Estimator Estimator
	// AcceptNonConverged uses the last weights when the estimator hits its
	// iteration cap instead of failing the expansion.
	AcceptNonConverged bool
	Exclusion          tokenizer.Excluder
	Stemmer            tokenizer.Stemmer
	// LogSpans logs the span tree of every expansion.
	LogSpans bool
}

func OptionsFromConfig(cfg config.FeedbackConfig, exclusion tokenizer.Excluder, stemmer tokenizer.Stemmer) Options {
	return Options{
		Defaults: DefaultsFromConfig(cfg),
		Estimator: Estimator{
			Epsilon:       cfg.Epsilon,
			MaxIterations: cfg.MaxIterations,
		},
		AcceptNonConverged: cfg.AcceptNonConverged,
		Exclusion:          exclusion,
		Stemmer:            stemmer,
	}
}

// NewFromConfig builds a MixtureModel whose exclusion list comes from
// cfg.StopwordsFile, or the built-in list when unset.
func NewFromConfig(retrieval Retrieval, cfg config.FeedbackConfig, stemmer tokenizer.Stemmer, logSpans bool) (*MixtureModel, error) {
	exclusion, err := tokenizer.StopWordsOrDefault(cfg.StopwordsFile)
	if err != nil {
		return nil, fmt.Errorf("loading feedback stopwords: %w", err)
	}
	opts := OptionsFromConfig(cfg, exclusion, stemmer)
	opts.LogSpans = logSpans
	return NewMixtureModel(retrieval, opts), nil
}

// MixtureModel expands queries with the mixture-model term weights.
type MixtureModel struct {
	retrieval Retrieval
	opts      Options
}

func NewMixtureModel(retrieval Retrieval, opts Options) *MixtureModel {
	return &MixtureModel{retrieval: retrieval, opts: opts}
}

func (m *MixtureModel) Expand(ctx context.Context, root *query.Node, params query.Params) *Result {
	log := logger.FromContext(ctx).With("component", "feedback")
	ctx, span := tracing.StartSpan(ctx, "query_expansion", traceID(ctx))
	defer func() {
		span.End()
		if m.opts.LogSpans {
			span.Log(log)
		}
	}()

	res := &Result{State: StateInit}
	fail := func(err error) *Result {
		res.FailedAt = res.State
		res.State = StateFailed
		res.Err = err
		res.Query = nil
		span.SetAttr("failed_at", res.FailedAt.String())
		span.SetError(err)
		log.Debug("expansion failed", "state", res.FailedAt.String(), "error", err)
		return res
	}

	p, err := ResolveParameters(root, params, m.opts.Defaults)
	if err != nil {
		return fail(err)
	}
	res.Params = p
	res.State = StateParamsValidated

	stageCtx, stage := tracing.StartChildSpan(ctx, "initial_retrieval")
	fbParams := params.With(query.ParamRequested, float64(p.FbDocs))
	transformed, err := m.retrieval.TransformQuery(stageCtx, root, fbParams)
	if err != nil {
		stage.End()
		return fail(fmt.Errorf("transforming query: %w", err))
	}
	// A node-level requested would outrank fbParams and change the
	// feedback depth.
	fbQuery := *transformed
	fbQuery.Params = transformed.Params.Without(query.ParamRequested)
	feedbackDocs, err := m.retrieval.ExecuteQuery(stageCtx, &fbQuery, fbParams)
	stage.SetAttr("documents", len(feedbackDocs))
	stage.End()
	if err != nil {
		return fail(fmt.Errorf("initial retrieval: %w", err))
	}
	if len(feedbackDocs) == 0 {
		return fail(apperrors.ErrEmptyFeedbackSet)
	}
	res.State = StateInitialRetrieved

	stageCtx, stage = tracing.StartChildSpan(ctx, "collect_statistics")
	counts, err := CollectTermCounts(stageCtx, m.retrieval, feedbackDocs, m.opts.Exclusion, m.opts.Stemmer)
	if err != nil {
		stage.End()
		return fail(err)
	}
	bg, err := CollectBackgroundStats(stageCtx, m.retrieval, counts.Terms())
	stage.SetAttr("terms", counts.Len())
	stage.End()
	if err != nil {
		return fail(err)
	}
	res.State = StateStatsCollected

	_, stage = tracing.StartChildSpan(ctx, "estimate_weights")
	est, err := m.opts.Estimator.Estimate(counts, bg)
	if est != nil {
		stage.SetAttr("iterations", est.Iterations)
		stage.SetAttr("converged", est.Converged)
		res.Iterations = est.Iterations
		res.Converged = est.Converged
	}
	stage.End()
	if err != nil {
		if !errors.Is(err, apperrors.ErrNonConvergence) || !m.opts.AcceptNonConverged {
			return fail(err)
		}
		log.Warn("using unconverged feedback weights", "iterations", est.Iterations)
	}
	res.State = StateWeightsEstimated

	expansion := BuildExpansion(est.Terms, p.FbTerm)
	res.Terms = expansion.Terms
	res.State = StateExpansionBuilt

	res.Query = Interpolate(transformed, expansion.Node(), p.FbOrigWeight)
	res.State = StateInterpolated

	log.Debug("query expanded",
		"feedback_docs", len(feedbackDocs),
		"candidate_terms", counts.Len(),
		"expansion_terms", expansion.Terms,
		"iterations", res.Iterations,
		"query", res.Query.String(),
	)
	span.SetAttr("expansion_terms", len(expansion.Terms))
	res.State = StateDone
	return res
}

func traceID(ctx context.Context) string {
	if id := logger.QueryID(ctx); id != "" {
		return id
	}
	return logger.RequestID(ctx)
}
