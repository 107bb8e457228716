package tokenizer

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Excluder reports whether a word is dropped before indexing or counting.
type Excluder interface {
	IsExcluded(word string) bool
}

// StopWords is a set of excluded words.
type StopWords map[string]struct{}

func (s StopWords) IsExcluded(word string) bool {
	_, ok := s[word]
	return ok
}

var defaultStopWords = []string{
	"a", "an", "and", "are", "as", "at",
	"be", "by", "for", "from", "has", "he",
	"in", "is", "it", "its", "of", "on",
	"or", "that", "the", "to", "was", "were",
	"will", "with", "this", "but", "they",
	"have", "had", "what", "when", "where",
	"who", "which", "their", "if", "each",
	"do", "not", "no", "so", "can",
}

// DefaultStopWords returns a fresh copy of the built-in list.
func DefaultStopWords() StopWords {
	s := make(StopWords, len(defaultStopWords))
	for _, w := range defaultStopWords {
		s[w] = struct{}{}
	}
	return s
}

// LoadStopWords reads one word per line. Blank lines and lines starting
// with '#' are ignored; words are lowercased.
func LoadStopWords(path string) (StopWords, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening stopword list: %w", err)
	}
	defer f.Close()

	s := make(StopWords)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		s[strings.ToLower(line)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading stopword list %s: %w", path, err)
	}
	return s, nil
}

// StopWordsOrDefault loads path when set and falls back to the built-in list.
func StopWordsOrDefault(path string) (StopWords, error) {
	if path == "" {
		return DefaultStopWords(), nil
	}
	return LoadStopWords(path)
}
