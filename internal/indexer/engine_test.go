package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/errors"
)

func testConfig(dir string) config.IndexerConfig {
	return config.IndexerConfig{
		DataDir:        dir,
		SegmentMaxSize: 1 << 20,
		FlushInterval:  time.Hour,
		Stemmer:        "none",
	}
}

func newTestEngine(t *testing.T, dir string) *Engine {
	t.Helper()
	e, err := NewEngine(testConfig(dir), tokenizer.Analyzer{StopWords: tokenizer.DefaultStopWords()})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestEngineStatisticsAcrossFlush(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, t.TempDir())
	defer e.Close()

	if err := e.IndexDocument(ctx, "d1", "apple pie", "apple and cherry"); err != nil {
		t.Fatal(err)
	}
	if err := e.Flush(); err != nil {
		t.Fatal(err)
	}
	if err := e.IndexDocument(ctx, "d2", "apple", "banana"); err != nil {
		t.Fatal(err)
	}

	stats, err := e.TermStatistics("apple")
	if err != nil {
		t.Fatal(err)
	}
	if stats.CorpusFrequency != 3 || stats.DocumentFrequency != 2 {
		t.Errorf("apple stats = %+v, want cf=3 df=2", stats)
	}
	// "and" is a stop word.
	if got := e.CollectionLength(); got != 6 {
		t.Errorf("CollectionLength() = %d, want 6", got)
	}
	if e.DocumentCount() != 2 || e.DocLength("d1") != 4 {
		t.Errorf("DocumentCount()=%d DocLength(d1)=%d", e.DocumentCount(), e.DocLength("d1"))
	}
	pl, err := e.Search("Apple")
	if err != nil || len(pl) != 2 {
		t.Errorf("Search(Apple) = %v, %v", pl, err)
	}
}

func TestEngineRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, t.TempDir())
	defer e.Close()
	if err := e.IndexDocument(ctx, "d1", "t", "body"); err != nil {
		t.Fatal(err)
	}
	err := e.IndexDocument(ctx, "d1", "t", "body")
	if !errors.Is(err, apperrors.ErrDocumentExists) {
		t.Errorf("duplicate IndexDocument error = %v", err)
	}
	if e.DocumentCount() != 1 {
		t.Errorf("DocumentCount() = %d, want 1", e.DocumentCount())
	}
}

func TestEngineDocumentTerms(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, t.TempDir())
	defer e.Close()
	if err := e.IndexDocument(ctx, "d1", "The Cat", "sat on a mat!"); err != nil {
		t.Fatal(err)
	}
	got, err := e.DocumentTerms(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"the", "cat", "sat", "on", "mat"}
	if len(got) != len(want) {
		t.Fatalf("DocumentTerms() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("term %d = %q, want %q", i, got[i], want[i])
		}
	}
	if _, err := e.DocumentTerms(ctx, "missing"); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Errorf("missing document error = %v", err)
	}
}

func TestEngineRecoversAfterRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	e := newTestEngine(t, dir)
	if err := e.IndexDocument(ctx, "d1", "alpha", "beta beta"); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}

	e = newTestEngine(t, dir)
	defer e.Close()
	if e.CollectionLength() != 3 || e.DocumentCount() != 1 {
		t.Errorf("after restart: length=%d docs=%d", e.CollectionLength(), e.DocumentCount())
	}
	stats, err := e.TermStatistics("beta")
	if err != nil || stats.CorpusFrequency != 2 {
		t.Errorf("beta stats = %+v, %v", stats, err)
	}
	if e.SegmentCount() != 1 {
		t.Errorf("SegmentCount() = %d, want 1", e.SegmentCount())
	}
}

func TestEngineFlushWhileIndexing(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, t.TempDir())
	defer e.Close()

	const writers, perWriter = 4, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				id := fmt.Sprintf("w%d-%03d", w, i)
				if err := e.IndexDocument(ctx, id, "", "alpha beta"); err != nil {
					t.Errorf("IndexDocument(%s): %v", id, err)
					return
				}
			}
		}(w)
	}
	done := make(chan struct{})
	flushed := make(chan struct{})
	go func() {
		defer close(flushed)
		for {
			select {
			case <-done:
				return
			default:
			}
			if err := e.Flush(); err != nil {
				t.Errorf("Flush: %v", err)
				return
			}
		}
	}()
	wg.Wait()
	close(done)
	<-flushed
	if err := e.Flush(); err != nil {
		t.Fatal(err)
	}

	const total = writers * perWriter
	stats, err := e.TermStatistics("alpha")
	if err != nil {
		t.Fatal(err)
	}
	if stats.CorpusFrequency != total || stats.DocumentFrequency != total {
		t.Errorf("alpha stats = %+v, want cf=df=%d", stats, total)
	}
	pl, err := e.Search("alpha")
	if err != nil {
		t.Fatal(err)
	}
	if len(pl) != total {
		t.Errorf("Search(alpha) returned %d postings, want %d", len(pl), total)
	}
	if e.BufferedDocuments() != 0 {
		t.Errorf("BufferedDocuments() = %d after final flush", e.BufferedDocuments())
	}
}

func TestEngineReindexesUnflushedDocuments(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	e := newTestEngine(t, dir)
	if err := e.IndexDocument(ctx, "d1", "alpha", "beta"); err != nil {
		t.Fatal(err)
	}
	if err := e.Flush(); err != nil {
		t.Fatal(err)
	}
	if err := e.IndexDocument(ctx, "d2", "beta", "gamma"); err != nil {
		t.Fatal(err)
	}
	// Stop without the final flush: d2 is stored but in no segment.
	e.closeReaders()
	if err := e.docs.Close(); err != nil {
		t.Fatal(err)
	}

	e = newTestEngine(t, dir)
	defer e.Close()
	if e.BufferedDocuments() != 1 {
		t.Errorf("BufferedDocuments() = %d, want 1", e.BufferedDocuments())
	}
	stats, err := e.TermStatistics("beta")
	if err != nil || stats.CorpusFrequency != 2 || stats.DocumentFrequency != 2 {
		t.Errorf("beta stats = %+v, %v", stats, err)
	}
	pl, err := e.Search("gamma")
	if err != nil || len(pl) != 1 || pl[0].DocID != "d2" {
		t.Errorf("Search(gamma) = %v, %v", pl, err)
	}
	if err := e.IndexDocument(ctx, "d2", "beta", "gamma"); !errors.Is(err, apperrors.ErrDocumentExists) {
		t.Errorf("re-ingest error = %v", err)
	}
}

func TestEngineClosed(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := e.TermStatistics("x"); !errors.Is(err, apperrors.ErrEngineClosed) {
		t.Errorf("TermStatistics after close = %v", err)
	}
	if err := e.IndexDocument(context.Background(), "d", "", "x"); !errors.Is(err, apperrors.ErrEngineClosed) {
		t.Errorf("IndexDocument after close = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}
