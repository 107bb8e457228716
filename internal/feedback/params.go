package feedback

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/errors"
)

// Defaults are the system-wide fallbacks for feedback parameters.
type Defaults struct {
	FbDocs int
	FbTerm int
	// FbOrigWeight is nil when no default is configured.
	FbOrigWeight *float64
}

func DefaultsFromConfig(cfg config.FeedbackConfig) Defaults {
	return Defaults{
		FbDocs:       cfg.FbDocs,
		FbTerm:       cfg.FbTerm,
		FbOrigWeight: cfg.FbOrigWeight,
	}
}

// Parameters are the resolved feedback parameters for one query.
type Parameters struct {
	FbDocs       int
	FbTerm       int
	FbOrigWeight float64
}

// ResolveParameters applies node parameters over query parameters over
// defaults and validates the result.
func ResolveParameters(root *query.Node, params query.Params, defaults Defaults) (Parameters, error) {
	p := Parameters{
		FbDocs: resolveInt(root, params, query.ParamFbDocs, defaults.FbDocs),
		FbTerm: resolveInt(root, params, query.ParamFbTerm, defaults.FbTerm),
	}
	if p.FbDocs <= 0 {
		return p, fmt.Errorf("%w: fbDocs must be positive, got %d", apperrors.ErrInvalidParameter, p.FbDocs)
	}
	if p.FbTerm <= 0 {
		return p, fmt.Errorf("%w: fbTerm must be positive, got %d", apperrors.ErrInvalidParameter, p.FbTerm)
	}
	w, err := ResolveOrigWeight(root, params, defaults.FbOrigWeight)
	if err != nil {
		return p, err
	}
	p.FbOrigWeight = w
	return p, nil
}

// ResolveOrigWeight finds fbOrigWeight on the node, then in the query
// parameters, then in the default.
func ResolveOrigWeight(root *query.Node, params query.Params, def *float64) (float64, error) {
	var w float64
	if v, ok := nodeParams(root).Float(query.ParamFbOrigWeight); ok {
		w = v
	} else if v, ok := params.Float(query.ParamFbOrigWeight); ok {
		w = v
	} else if def != nil {
		w = *def
	} else {
		return 0, fmt.Errorf("%w: fbOrigWeight", apperrors.ErrMissingDefault)
	}
	if w < 0 || w > 1 {
		return 0, fmt.Errorf("%w: fbOrigWeight must be in [0,1], got %g", apperrors.ErrInvalidParameter, w)
	}
	return w, nil
}

func resolveInt(root *query.Node, params query.Params, key string, def int) int {
	if v, ok := nodeParams(root).Int(key); ok {
		return v
	}
	if v, ok := params.Int(key); ok {
		return v
	}
	return def
}

func nodeParams(root *query.Node) query.Params {
	if root == nil {
		return nil
	}
	return root.Params
}
