package feedback

import (
	"fmt"
	"math"
	"sort"

	apperrors "github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/errors"
)

const (
	DefaultEpsilon       = 1e-4
	DefaultMaxIterations = 100
)

// WeightedTerm is a feedback term and its estimated topic weight.
type WeightedTerm struct {
	Term   string  `json:"term"`
	Weight float64 `json:"weight"`
}

// Estimator runs the mixture-model fixed point. Zero fields take their
// defaults.
type Estimator struct {
	Epsilon       float64
	MaxIterations int
}

// Estimate is the outcome of one estimation.
type Estimate struct {
	// Terms are sorted by descending weight; equal weights keep first-seen
	// order.
	Terms      []WeightedTerm
	Iterations int
	Converged  bool
}

// Estimate iterates
//
//	p(t)  = w(t) / (w(t) + pwc(t))
//	w'(t) = f(t) p(t) / sum_u f(u) p(u)
//
// from uniform weights until no weight moves by epsilon or more. When the
// iteration cap is reached the last weights are returned together with an
// error wrapping ErrNonConvergence.
func (e Estimator) Estimate(counts *TermCounts, bg *BackgroundStats) (*Estimate, error) {
	epsilon := e.Epsilon
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}
	maxIter := e.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	terms := counts.Terms()
	n := len(terms)
	if n == 0 {
		return nil, fmt.Errorf("%w: no feedback terms", apperrors.ErrDegenerateInput)
	}

	freq := make([]float64, n)
	pwc := make([]float64, n)
	weight := make([]float64, n)
	for i, t := range terms {
		freq[i] = float64(counts.Frequency(t))
		pwc[i] = bg.PWC(t)
		weight[i] = 1 / float64(n)
	}

	resp := make([]float64, n)
	next := make([]float64, n)
	converged := false
	iter := 0
	for iter < maxIter {
		iter++
		var z float64
		for i := range weight {
			denom := weight[i] + pwc[i]
			if denom == 0 {
				resp[i] = 0
			} else {
				resp[i] = weight[i] / denom
			}
			z += freq[i] * resp[i]
		}
		if z == 0 {
			converged = true
			break
		}
		converged = true
		for i := range weight {
			next[i] = freq[i] * resp[i] / z
			if math.Abs(next[i]-weight[i]) >= epsilon {
				converged = false
			}
		}
		weight, next = next, weight
		if converged {
			break
		}
	}

	est := &Estimate{
		Terms:      make([]WeightedTerm, n),
		Iterations: iter,
		Converged:  converged,
	}
	for i, t := range terms {
		est.Terms[i] = WeightedTerm{Term: t, Weight: weight[i]}
	}
	sort.SliceStable(est.Terms, func(i, j int) bool {
		return est.Terms[i].Weight > est.Terms[j].Weight
	})
	if !converged {
		return est, fmt.Errorf("%w: %d iterations at epsilon %g", apperrors.ErrNonConvergence, iter, epsilon)
	}
	return est, nil
}
