package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/indexer/docstore"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/errors"
)

const docStoreFile = "docs.db"

// TermStats are the collection-wide counts of one index term.
type TermStats struct {
	Term              string
	CorpusFrequency   int64
	DocumentFrequency int64
}

// Engine buffers new documents in a memory index and flushes it into
// immutable segments. viewMu guards the active buffer, the buffer being
// flushed and the reader list, so a lookup sees every document exactly once
// while a flush is in progress.
type Engine struct {
	memIndex     *index.MemoryIndex
	flushing     *index.MemoryIndex
	writer       *segment.Writer
	readers      []*segment.Reader
	viewMu       sync.RWMutex
	flushMu      sync.Mutex
	docs         *docstore.Store
	analyzer     tokenizer.Analyzer
	cfg          config.IndexerConfig
	logger       *slog.Logger
	docLengths   map[string]int
	docLengthsMu sync.RWMutex
	totalDocs    int64
	totalTokens  int64
	closed       atomic.Bool
}

// NewAnalyzer builds the analyzer described by cfg.
func NewAnalyzer(cfg config.IndexerConfig) (tokenizer.Analyzer, error) {
	stemmer, err := tokenizer.NewStemmer(cfg.Stemmer)
	if err != nil {
		return tokenizer.Analyzer{}, err
	}
	stopWords, err := tokenizer.StopWordsOrDefault(cfg.StopwordsFile)
	if err != nil {
		return tokenizer.Analyzer{}, err
	}
	return tokenizer.Analyzer{StopWords: stopWords, Stemmer: stemmer}, nil
}

func NewEngine(cfg config.IndexerConfig, analyzer tokenizer.Analyzer) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	docs, err := docstore.Open(filepath.Join(cfg.DataDir, docStoreFile))
	if err != nil {
		return nil, fmt.Errorf("opening document store: %w", err)
	}
	e := &Engine{
		memIndex:   index.NewMemoryIndex(),
		writer:     segment.NewWriter(cfg.DataDir),
		docs:       docs,
		analyzer:   analyzer,
		cfg:        cfg,
		logger:     slog.Default().With("component", "indexer"),
		docLengths: make(map[string]int),
	}
	if err := e.loadDocLengths(); err != nil {
		docs.Close()
		return nil, fmt.Errorf("loading document lengths: %w", err)
	}
	if err := e.loadExistingSegments(); err != nil {
		docs.Close()
		return nil, fmt.Errorf("loading existing segments: %w", err)
	}
	if err := e.recoverUnflushed(context.Background()); err != nil {
		e.closeReaders()
		docs.Close()
		return nil, fmt.Errorf("recovering unflushed documents: %w", err)
	}
	return e, nil
}

// Analyzer returns the analyzer documents were indexed with.
func (e *Engine) Analyzer() tokenizer.Analyzer {
	return e.analyzer
}

func (e *Engine) IndexDocument(ctx context.Context, docID string, title string, body string) error {
	if e.closed.Load() {
		return apperrors.ErrEngineClosed
	}
	tokens := e.analyzer.Analyze(title + " " + body)

	err := e.docs.Put(ctx, docstore.Document{
		ID:     docID,
		Title:  title,
		Body:   body,
		Length: len(tokens),
	})
	if err != nil {
		return err
	}

	e.docLengthsMu.Lock()
	e.docLengths[docID] = len(tokens)
	e.totalDocs++
	e.totalTokens += int64(len(tokens))
	e.docLengthsMu.Unlock()

	// Holding the view lock keeps Flush from detaching the buffer while the
	// document is half added.
	e.viewMu.RLock()
	mem := e.memIndex
	mem.AddDocument(docID, tokens)
	e.viewMu.RUnlock()
	size := mem.Size()
	e.logger.Debug("document indexed in memory",
		"doc_id", docID,
		"token_count", len(tokens),
		"mem_size", size,
	)
	if size >= e.cfg.SegmentMaxSize {
		e.logger.Info("memory index reached max size, flushing to disk",
			"size", size,
			"threshold", e.cfg.SegmentMaxSize,
		)
		if err := e.Flush(); err != nil {
			return fmt.Errorf("flushing memory index: %w", err)
		}
	}
	return nil
}

// Flush writes the buffered documents to a new segment. The buffer is
// swapped for an empty one first, so indexing continues during the write;
// the detached buffer stays searchable until the segment reader replaces it.
// On failure the detached documents return to the active buffer.
func (e *Engine) Flush() error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	e.viewMu.Lock()
	frozen := e.memIndex
	if frozen.DocCount() == 0 {
		e.viewMu.Unlock()
		return nil
	}
	e.memIndex = index.NewMemoryIndex()
	e.flushing = frozen
	e.viewMu.Unlock()

	snapshot := frozen.Snapshot()
	if len(snapshot) == 0 {
		// Only documents without index terms; nothing to persist.
		e.viewMu.Lock()
		e.flushing = nil
		e.viewMu.Unlock()
		return nil
	}
	reader, err := e.writeSegment(snapshot)
	if err != nil {
		e.viewMu.Lock()
		e.memIndex.Absorb(frozen)
		e.flushing = nil
		e.viewMu.Unlock()
		return err
	}

	e.viewMu.Lock()
	e.readers = append(e.readers, reader)
	e.flushing = nil
	active := len(e.readers)
	e.viewMu.Unlock()
	e.logger.Info("segment flushed",
		"segment", filepath.Base(reader.Path()),
		"terms", reader.Terms(),
		"docs", reader.DocCount(),
		"active_segments", active,
	)
	return nil
}

func (e *Engine) writeSegment(snapshot []index.TermEntry) (*segment.Reader, error) {
	segmentName, err := e.writer.Write(snapshot)
	if err != nil {
		return nil, fmt.Errorf("writing segment: %w", err)
	}
	segPath := filepath.Join(e.cfg.DataDir, segmentName)
	reader, err := segment.OpenReader(segPath)
	if err != nil {
		// The buffer is written again by the next flush.
		os.Remove(segPath)
		return nil, fmt.Errorf("opening new segment for reading: %w", err)
	}
	return reader, nil
}

// view returns the buffers and segments a lookup must consult.
func (e *Engine) view() ([]*index.MemoryIndex, []*segment.Reader) {
	e.viewMu.RLock()
	defer e.viewMu.RUnlock()
	mems := []*index.MemoryIndex{e.memIndex}
	if e.flushing != nil {
		mems = append(mems, e.flushing)
	}
	readers := make([]*segment.Reader, len(e.readers))
	copy(readers, e.readers)
	return mems, readers
}

// Postings returns the merged postings of an already analyzed index term.
func (e *Engine) Postings(term string) (index.PostingList, error) {
	if e.closed.Load() {
		return nil, apperrors.ErrEngineClosed
	}
	mems, readers := e.view()
	lists := make([]index.PostingList, 0, len(readers)+len(mems))
	for _, mem := range mems {
		lists = append(lists, mem.Search(term))
	}
	for _, reader := range readers {
		postings, err := reader.Search(term)
		if err != nil {
			return nil, fmt.Errorf("searching segment %s: %w", filepath.Base(reader.Path()), err)
		}
		lists = append(lists, postings)
	}
	return index.Merge(lists...), nil
}

// Search analyzes a single word and returns its postings. Words the
// analyzer drops have no postings.
func (e *Engine) Search(word string) (index.PostingList, error) {
	tokens := e.analyzer.Analyze(word)
	if len(tokens) == 0 {
		return nil, nil
	}
	return e.Postings(tokens[0].Term)
}

// TermStatistics returns collection counts for an analyzed term. Only the
// segment dictionaries are consulted for flushed data.
func (e *Engine) TermStatistics(term string) (TermStats, error) {
	if e.closed.Load() {
		return TermStats{}, apperrors.ErrEngineClosed
	}
	mems, readers := e.view()
	stats := TermStats{Term: term}
	for _, mem := range mems {
		st := mem.Stats(term)
		stats.CorpusFrequency += st.CorpusFrequency
		stats.DocumentFrequency += st.DocumentFrequency
	}
	for _, reader := range readers {
		entry, ok := reader.Lookup(term)
		if !ok {
			continue
		}
		stats.CorpusFrequency += entry.CorpusFreq
		stats.DocumentFrequency += int64(entry.DocFreq)
	}
	return stats, nil
}

// DocumentTerms returns the lowercased surface words of a stored document,
// dropping words too short to be indexed.
func (e *Engine) DocumentTerms(ctx context.Context, docID string) ([]string, error) {
	doc, err := e.Document(ctx, docID)
	if err != nil {
		return nil, err
	}
	words := tokenizer.Words(doc.Text())
	kept := words[:0]
	for _, w := range words {
		if len(w) >= tokenizer.MinTermLength {
			kept = append(kept, w)
		}
	}
	return kept, nil
}

func (e *Engine) Document(ctx context.Context, docID string) (docstore.Document, error) {
	if e.closed.Load() {
		return docstore.Document{}, apperrors.ErrEngineClosed
	}
	return e.docs.Get(ctx, docID)
}

func (e *Engine) DocLength(docID string) int {
	e.docLengthsMu.RLock()
	defer e.docLengthsMu.RUnlock()
	return e.docLengths[docID]
}

func (e *Engine) AvgDocLength() float64 {
	e.docLengthsMu.RLock()
	defer e.docLengthsMu.RUnlock()
	if e.totalDocs == 0 {
		return 0
	}
	return float64(e.totalTokens) / float64(e.totalDocs)
}

func (e *Engine) DocumentCount() int64 {
	e.docLengthsMu.RLock()
	defer e.docLengthsMu.RUnlock()
	return e.totalDocs
}

// CollectionLength is the total number of indexed tokens.
func (e *Engine) CollectionLength() int64 {
	e.docLengthsMu.RLock()
	defer e.docLengthsMu.RUnlock()
	return e.totalTokens
}

// SegmentCount returns the number of open on-disk segments.
func (e *Engine) SegmentCount() int {
	e.viewMu.RLock()
	defer e.viewMu.RUnlock()
	return len(e.readers)
}

// BufferedDocuments is the number of documents not yet flushed.
func (e *Engine) BufferedDocuments() int {
	mems, _ := e.view()
	n := 0
	for _, mem := range mems {
		n += mem.DocCount()
	}
	return n
}

// Closed reports whether Close has been called.
func (e *Engine) Closed() bool {
	return e.closed.Load()
}

func (e *Engine) StartFlushLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.FlushInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("flush loop stopping, performing final flush")
				if err := e.Flush(); err != nil {
					e.logger.Error("final flush failed", "error", err)
				}
				return
			case <-ticker.C:
				if e.BufferedDocuments() > 0 {
					if err := e.Flush(); err != nil {
						e.logger.Error("periodic flush failed", "error", err)
					}
				}
			}
		}
	}()
}

func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := e.Flush(); err != nil {
		e.logger.Error("final flush on close failed", "error", err)
	}
	e.closeReaders()
	if err := e.docs.Close(); err != nil {
		return fmt.Errorf("closing document store: %w", err)
	}
	return nil
}

func (e *Engine) closeReaders() {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()
	e.viewMu.Lock()
	defer e.viewMu.Unlock()
	for _, reader := range e.readers {
		if err := reader.Close(); err != nil {
			e.logger.Error("closing segment reader", "error", err)
		}
	}
	e.readers = nil
}

func (e *Engine) loadDocLengths() error {
	lengths, err := e.docs.Lengths(context.Background())
	if err != nil {
		return err
	}
	e.docLengths = lengths
	e.totalDocs = int64(len(lengths))
	for _, l := range lengths {
		e.totalTokens += int64(l)
	}
	if e.totalDocs > 0 {
		e.logger.Info("document store loaded",
			"documents", e.totalDocs,
			"tokens", e.totalTokens,
		)
	}
	return nil
}

func (e *Engine) loadExistingSegments() error {
	entries, err := os.ReadDir(e.cfg.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading data directory: %w", err)
	}
	segFiles := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), segment.Extension) {
			segFiles = append(segFiles, entry.Name())
		}
	}
	slices.Sort(segFiles)

	for _, name := range segFiles {
		path := filepath.Join(e.cfg.DataDir, name)
		reader, err := segment.OpenReader(path)
		if err != nil {
			e.logger.Error("failed to open segment, skipping",
				"segment", name,
				"error", err,
			)
			continue
		}
		e.readers = append(e.readers, reader)
		e.logger.Info("loaded existing segment",
			"segment", name,
			"terms", reader.Terms(),
			"docs", reader.DocCount(),
		)
	}
	e.logger.Info("segment recovery complete", "segments_loaded", len(e.readers))
	return nil
}

// recoverUnflushed re-analyzes stored documents that no segment contains,
// which happens when the process stops between storing a document and
// flushing its buffer.
func (e *Engine) recoverUnflushed(ctx context.Context) error {
	flushed := make(map[string]struct{})
	for _, reader := range e.readers {
		ids, err := reader.DocIDs()
		if err != nil {
			return fmt.Errorf("listing documents of %s: %w", filepath.Base(reader.Path()), err)
		}
		for id := range ids {
			flushed[id] = struct{}{}
		}
	}
	recovered := 0
	err := e.docs.Each(ctx, func(doc docstore.Document) error {
		if _, ok := flushed[doc.ID]; ok {
			return nil
		}
		tokens := e.analyzer.Analyze(doc.Text())
		if len(tokens) == 0 {
			return nil
		}
		e.memIndex.AddDocument(doc.ID, tokens)
		recovered++
		return nil
	})
	if err != nil {
		return err
	}
	if recovered > 0 {
		e.logger.Warn("re-indexed documents missing from segments", "documents", recovered)
	}
	return nil
}
