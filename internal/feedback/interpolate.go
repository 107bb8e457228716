package feedback

import (
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/query"
)

// Interpolate mixes the original query with the expansion. A weight of
// exactly 1 returns original itself. The mixed root takes over original's
// node parameters, so settings such as requested and mu still apply to the
// expanded query.
func Interpolate(original, expansion *query.Node, fbOrigWeight float64) *query.Node {
	if fbOrigWeight == 1 {
		return original
	}
	out := query.Combine(
		[]*query.Node{original, expansion},
		[]float64{fbOrigWeight, 1 - fbOrigWeight},
	)
	out.Params = original.Params.Clone()
	return out
}
