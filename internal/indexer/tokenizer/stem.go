package tokenizer

import (
	"fmt"
	"strings"

	porterstemmer "github.com/blevesearch/go-porterstemmer"
)

// Stemmer normalises a lowercased word.
type Stemmer interface {
	Stem(word string) string
}

// NewStemmer returns the stemmer registered under name. "none" yields nil,
// which callers treat as the identity.
func NewStemmer(name string) (Stemmer, error) {
	switch name {
	case "", "none":
		return nil, nil
	case "simple":
		return SimpleStemmer{}, nil
	case "porter":
		return PorterStemmer{}, nil
	default:
		return nil, fmt.Errorf("unknown stemmer %q", name)
	}
}

// Stem applies s to word, treating a nil stemmer as the identity.
func Stem(s Stemmer, word string) string {
	if s == nil {
		return word
	}
	return s.Stem(word)
}

// PorterStemmer is the classic Porter algorithm.
type PorterStemmer struct{}

func (PorterStemmer) Stem(word string) string {
	return porterstemmer.StemString(word)
}

// SimpleStemmer strips a fixed list of English suffixes.
type SimpleStemmer struct{}

var suffixRules = []struct {
	suffix      string
	replacement string
	minLen      int
}{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"eness", "ene", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ling", "l", 3},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"est", "", 3},
	{"ful", "", 3},
	{"ous", "", 3},
	{"ess", "", 3},
	{"ble", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}

func (SimpleStemmer) Stem(word string) string {
	for _, rule := range suffixRules {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}
