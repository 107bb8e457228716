package query

import (
	"fmt"
	"strconv"
	"unicode"

	apperrors "github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/errors"
)

// Parse reads a query. Plain words at the top level are wrapped in an
// unweighted #combine; a single operator node is returned as the root.
func Parse(src string) (*Node, error) {
	p := &parser{src: []rune(src)}
	nodes, err := p.sequence(false)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: empty query", apperrors.ErrInvalidInput)
	}
	if len(nodes) == 1 && !nodes[0].IsLeaf() {
		return nodes[0], nil
	}
	return Combine(nodes, nil), nil
}

type parser struct {
	src []rune
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: at offset %d: %s", apperrors.ErrInvalidInput, p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *parser) peek() (rune, bool) {
	if p.pos >= len(p.src) {
		return 0, false
	}
	return p.src[p.pos], true
}

// sequence reads nodes until end of input, or until ')' when nested.
func (p *parser) sequence(nested bool) ([]*Node, error) {
	var nodes []*Node
	for {
		p.skipSpace()
		r, ok := p.peek()
		if !ok {
			if nested {
				return nil, p.errorf("missing ')'")
			}
			return nodes, nil
		}
		if r == ')' {
			if !nested {
				return nil, p.errorf("unexpected ')'")
			}
			p.pos++
			return nodes, nil
		}
		node, err := p.node()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
}

func (p *parser) node() (*Node, error) {
	switch r, _ := p.peek(); r {
	case '(':
		return nil, p.errorf("unexpected '('")
	case '#':
	default:
		return Text(p.word()), nil
	}
	p.pos++
	name := p.until(func(r rune) bool { return r == ':' || r == '(' || unicode.IsSpace(r) })
	weights := make(map[int]float64)
	params := Params{}
	for {
		r, ok := p.peek()
		if !ok || r != ':' {
			break
		}
		p.pos++
		key := p.until(func(r rune) bool { return r == '=' || r == ':' || r == '(' })
		if r, _ := p.peek(); r != '=' {
			return nil, p.errorf("parameter %q has no value", key)
		}
		p.pos++
		raw := p.until(func(r rune) bool { return r == ':' || r == '(' })
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, p.errorf("parameter %q: bad number %q", key, raw)
		}
		if idx, err := strconv.Atoi(key); err == nil {
			if idx < 0 || v < 0 {
				return nil, p.errorf("bad child weight %s=%s", key, raw)
			}
			weights[idx] = v
			continue
		}
		params[CanonicalParam(key)] = v
	}
	if r, _ := p.peek(); r != '(' {
		return nil, p.errorf("expected '(' after #%s", name)
	}
	p.pos++
	children, err := p.sequence(true)
	if err != nil {
		return nil, err
	}

	switch name {
	case OpTerm:
		if len(children) != 1 || children[0].Operator != OpText {
			return nil, p.errorf("#term takes exactly one word")
		}
		return Term(children[0].Term), nil
	case OpCombine:
		node := Combine(children, nil)
		if len(weights) > 0 {
			node.Weights = make([]float64, len(children))
			for i := range node.Weights {
				node.Weights[i] = 1
			}
			for idx, w := range weights {
				if idx >= len(children) {
					return nil, p.errorf("weight for child %d of %d", idx, len(children))
				}
				node.Weights[idx] = w
			}
		}
		if len(params) > 0 {
			node.Params = params
		}
		return node, nil
	default:
		return nil, p.errorf("unknown operator #%s", name)
	}
}

func (p *parser) word() string {
	return p.until(func(r rune) bool { return r == '(' || r == ')' || unicode.IsSpace(r) })
}

func (p *parser) until(stop func(rune) bool) string {
	start := p.pos
	for p.pos < len(p.src) && !stop(p.src[p.pos]) {
		p.pos++
	}
	return string(p.src[start:p.pos])
}
