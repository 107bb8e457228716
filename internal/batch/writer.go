package batch

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/ranker"
)

// ResultWriter writes rankings as TREC run lines:
//
//	qid Q0 docid rank score runTag
type ResultWriter struct {
	w      *bufio.Writer
	closer io.Closer
	runTag string
	lines  int
	closed bool
}

// NewResultWriter writes to w. The caller keeps ownership of w: Close only
// flushes.
func NewResultWriter(w io.Writer, runTag string) *ResultWriter {
	return &ResultWriter{w: bufio.NewWriter(w), runTag: runTag}
}

// OpenResultWriter creates or truncates path, or appends to it when appendMode
// is set.
func OpenResultWriter(path string, appendMode bool, runTag string) (*ResultWriter, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening result file: %w", err)
	}
	rw := NewResultWriter(f, runTag)
	rw.closer = f
	return rw, nil
}

// Write emits one line per document with ranks starting at 1.
func (rw *ResultWriter) Write(queryID string, docs []ranker.ScoredDoc) error {
	for i, d := range docs {
		if _, err := fmt.Fprintf(rw.w, "%s Q0 %s %d %.6f %s\n", queryID, d.DocID, i+1, d.Score, rw.runTag); err != nil {
			return fmt.Errorf("writing results for %s: %w", queryID, err)
		}
		rw.lines++
	}
	return nil
}

// Lines returns the number of result lines written so far.
func (rw *ResultWriter) Lines() int {
	return rw.lines
}

func (rw *ResultWriter) Flush() error {
	return rw.w.Flush()
}

// Close flushes and closes the file opened by OpenResultWriter, if any.
// Later calls do nothing.
func (rw *ResultWriter) Close() error {
	if rw.closed {
		return nil
	}
	rw.closed = true
	if err := rw.w.Flush(); err != nil {
		return fmt.Errorf("flushing results: %w", err)
	}
	if rw.closer != nil {
		return rw.closer.Close()
	}
	return nil
}
