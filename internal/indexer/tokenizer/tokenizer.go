// Package tokenizer provides text tokenisation for the search engine.
// It lower-cases input, splits on non-alphanumeric boundaries, removes
// stop-words, and applies a configurable stemmer.
package tokenizer

import (
	"strings"
	"unicode"
)

// MinTermLength is the shortest word the analyzer keeps.
const MinTermLength = 2

// Token represents a single normalised term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Analyzer turns raw text into index terms. A nil StopWords keeps every
// word; a nil Stemmer leaves words as they are.
type Analyzer struct {
	StopWords Excluder
	Stemmer   Stemmer
}

// DefaultAnalyzer mirrors what the engine indexes with when nothing is
// configured: built-in stop-words and the suffix stemmer.
func DefaultAnalyzer() Analyzer {
	return Analyzer{
		StopWords: DefaultStopWords(),
		Stemmer:   SimpleStemmer{},
	}
}

// Tokenize breaks text into a slice of stemmed, lowercased Tokens with
// stop-words removed, using the default analyzer.
func Tokenize(text string) []Token {
	return DefaultAnalyzer().Analyze(text)
}

// Analyze breaks text into normalised Tokens. Positions count kept tokens
// only.
func (a Analyzer) Analyze(text string) []Token {
	words := Words(text)
	tokens := make([]Token, 0, len(words)/2)
	pos := 0
	for _, word := range words {
		term, ok := a.Normalize(word)
		if !ok {
			continue
		}
		tokens = append(tokens, Token{
			Term:     term,
			Position: pos,
		})
		pos++
	}
	return tokens
}

// Normalize maps a single lowercased word to its index term. It reports
// false when the word is dropped.
func (a Analyzer) Normalize(word string) (string, bool) {
	if len(word) < MinTermLength {
		return "", false
	}
	if a.StopWords != nil && a.StopWords.IsExcluded(word) {
		return "", false
	}
	term := word
	if a.Stemmer != nil {
		term = a.Stemmer.Stem(word)
	}
	if term == "" {
		return "", false
	}
	return term, true
}

// Words lower-cases text and splits it on anything that is not a letter or
// a digit. No stop-word removal or stemming is applied.
func Words(text string) []string {
	text = strings.ToLower(text)
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
