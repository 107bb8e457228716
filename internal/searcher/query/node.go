// Package query models structured queries as a tree of operator nodes.
//
// The textual form is
//
//	#combine:0=0.7:1=0.3:fbDocs=5( apple #combine( pie crust ) )
//
// where numeric keys set child weights and named keys set node parameters.
// Bare words are raw text leaves; #term(x) is a leaf that already holds an
// analyzed index term.
package query

import (
	"sort"
	"strconv"
	"strings"
)

const (
	OpCombine = "combine"
	OpText    = "text"
	OpTerm    = "term"
)

// Node is one operator in a query tree. Leaves carry Term; #combine nodes
// carry Children and, optionally, one weight per child.
type Node struct {
	Operator string
	Term     string
	Children []*Node
	// Weights is nil when every child weighs 1.
	Weights []float64
	Params  Params
}

// Text returns a raw text leaf.
func Text(word string) *Node {
	return &Node{Operator: OpText, Term: word}
}

// Term returns a leaf holding an analyzed index term.
func Term(term string) *Node {
	return &Node{Operator: OpTerm, Term: term}
}

// Combine returns a #combine node. weights may be nil.
func Combine(children []*Node, weights []float64) *Node {
	return &Node{Operator: OpCombine, Children: children, Weights: weights}
}

func (n *Node) IsLeaf() bool {
	return n.Operator == OpText || n.Operator == OpTerm
}

// Weight returns the weight of child i.
func (n *Node) Weight(i int) float64 {
	if n.Weights == nil {
		return 1
	}
	return n.Weights[i]
}

// Clone returns a deep copy of the tree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{
		Operator: n.Operator,
		Term:     n.Term,
		Params:   n.Params.Clone(),
	}
	if n.Weights != nil {
		c.Weights = append([]float64(nil), n.Weights...)
	}
	if n.Children != nil {
		c.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = child.Clone()
		}
	}
	return c
}

// Terms returns the distinct leaf terms in first-seen order.
func (n *Node) Terms() []string {
	seen := make(map[string]struct{})
	var terms []string
	n.Walk(func(node *Node) {
		if !node.IsLeaf() {
			return
		}
		if _, ok := seen[node.Term]; ok {
			return
		}
		seen[node.Term] = struct{}{}
		terms = append(terms, node.Term)
	})
	return terms
}

// Walk visits the tree depth-first, parents before children.
func (n *Node) Walk(fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// String renders the node in the syntax accepted by Parse.
func (n *Node) String() string {
	var b strings.Builder
	n.write(&b)
	return b.String()
}

func (n *Node) write(b *strings.Builder) {
	switch n.Operator {
	case OpText:
		b.WriteString(n.Term)
		return
	case OpTerm:
		b.WriteString("#term(")
		b.WriteString(n.Term)
		b.WriteString(")")
		return
	}
	b.WriteString("#")
	b.WriteString(n.Operator)
	for i, w := range n.Weights {
		b.WriteString(":")
		b.WriteString(strconv.Itoa(i))
		b.WriteString("=")
		b.WriteString(formatFloat(w))
	}
	keys := make([]string, 0, len(n.Params))
	for k := range n.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(":")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(formatFloat(n.Params[k]))
	}
	b.WriteString("(")
	for i, child := range n.Children {
		if i > 0 {
			b.WriteString(" ")
		}
		child.write(b)
	}
	b.WriteString(")")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
