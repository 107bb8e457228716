// Package batch runs a file of queries through expansion and retrieval and
// writes the rankings in TREC run format.
package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/errors"
)

// Query is one line of a query file.
type Query struct {
	ID   string
	Text string
	Line int
}

// ReadQueries parses tab separated (queryId, queryText) lines. The text is
// everything after the first tab, so it may itself contain tabs. Blank lines
// are skipped and query text is lowercased.
func ReadQueries(r io.Reader) ([]Query, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	var queries []Query
	seen := make(map[string]int)
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading queries: %v", apperrors.ErrInvalidInput, err)
		}
		line, _ := cr.FieldPos(0)
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		if len(record) < 2 {
			return nil, fmt.Errorf("%w: line %d: want a query id and text separated by a tab",
				apperrors.ErrInvalidInput, line)
		}
		id := strings.TrimSpace(record[0])
		text := strings.TrimSpace(strings.Join(record[1:], "\t"))
		if id == "" || text == "" {
			return nil, fmt.Errorf("%w: line %d: empty query id or text", apperrors.ErrInvalidInput, line)
		}
		if prev, ok := seen[id]; ok {
			return nil, fmt.Errorf("%w: line %d: query %q already defined on line %d",
				apperrors.ErrInvalidInput, line, id, prev)
		}
		seen[id] = line
		queries = append(queries, Query{ID: id, Text: strings.ToLower(text), Line: line})
	}
	return queries, nil
}

// ReadQueryFile opens path and calls ReadQueries.
func ReadQueryFile(path string) ([]Query, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening query file: %w", err)
	}
	defer f.Close()
	return ReadQueries(f)
}
