package ranker

import (
	"fmt"
	"math"
)

const (
	DefaultMu = 1500.0
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// Scorer scores one term occurring tf times in a document of docLen tokens.
type Scorer interface {
	Score(tf int, docLen int, term TermStats, coll CollectionStats) float64
}

// NewScorer returns the scorer registered under name. Zero parameters take
// their defaults.
func NewScorer(name string, mu, k1, b float64) (Scorer, error) {
	switch name {
	case "", "dirichlet":
		if mu <= 0 {
			mu = DefaultMu
		}
		return Dirichlet{Mu: mu}, nil
	case "bm25":
		if k1 <= 0 {
			k1 = DefaultK1
		}
		if b <= 0 {
			b = DefaultB
		}
		return BM25{K1: k1, B: b}, nil
	default:
		return nil, fmt.Errorf("unknown scorer %q", name)
	}
}

// Dirichlet is query likelihood with Dirichlet prior smoothing.
type Dirichlet struct {
	Mu float64
}

func (d Dirichlet) Score(tf int, docLen int, term TermStats, coll CollectionStats) float64 {
	if coll.CollectionLength == 0 {
		return 0
	}
	background := float64(term.CorpusFrequency) / float64(coll.CollectionLength)
	return math.Log((float64(tf) + d.Mu*background) / (float64(docLen) + d.Mu))
}

// BM25 is Okapi BM25. Documents without the term score 0.
type BM25 struct {
	K1 float64
	B  float64
}

func (m BM25) Score(tf int, docLen int, term TermStats, coll CollectionStats) float64 {
	if tf == 0 {
		return 0
	}
	idf := computeIDF(coll.TotalDocs, term.DocumentFrequency)
	return idf * m.tfNorm(float64(tf), float64(docLen), coll.AvgDocLength)
}

func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq)
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func (m BM25) tfNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + m.K1*(1-m.B+m.B*lengthRatio)
	return (termFreq * (m.K1 + 1)) / denominator
}
