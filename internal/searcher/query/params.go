package query

import (
	"math"
	"strings"
)

// Parameter names understood by retrieval and feedback.
const (
	ParamRequested    = "requested"
	ParamFbDocs       = "fbDocs"
	ParamFbTerm       = "fbTerm"
	ParamFbOrigWeight = "fbOrigWeight"
	ParamMu           = "mu"
)

var knownParams = []string{ParamRequested, ParamFbDocs, ParamFbTerm, ParamFbOrigWeight, ParamMu}

// CanonicalParam maps a known parameter name in any letter case to its
// canonical spelling, so lowercased query text keeps its parameters.
// Unknown names are returned unchanged.
func CanonicalParam(key string) string {
	for _, k := range knownParams {
		if strings.EqualFold(k, key) {
			return k
		}
	}
	return key
}

// Params is a set of numeric parameters attached to a query or a node.
type Params map[string]float64

func (p Params) Float(key string) (float64, bool) {
	v, ok := p[key]
	return v, ok
}

// Int returns the parameter rounded to the nearest integer.
func (p Params) Int(key string) (int, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	return int(math.Round(v)), true
}

// With returns a copy of p with key set to v. p is not modified.
func (p Params) With(key string, v float64) Params {
	c := make(Params, len(p)+1)
	for k, val := range p {
		c[k] = val
	}
	c[key] = v
	return c
}

// Without returns a copy of p lacking key, or nil when nothing is left.
func (p Params) Without(key string) Params {
	c := p.Clone()
	delete(c, key)
	if len(c) == 0 {
		return nil
	}
	return c
}

// Clone returns a copy of p, or nil when p is empty.
func (p Params) Clone() Params {
	if len(p) == 0 {
		return nil
	}
	c := make(Params, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}
