// Package index holds the in-memory inverted index that buffers documents
// until the engine flushes them into a segment.
package index

import (
	"slices"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/indexer/tokenizer"
)

// TermStats are a term's collection counts within the buffer.
type TermStats struct {
	CorpusFrequency   int64
	DocumentFrequency int64
}

// MemoryIndex maps term -> document -> frequency and keeps per-term totals
// current, so statistics lookups never walk a posting list.
type MemoryIndex struct {
	mu       sync.RWMutex
	postings map[string]map[string]int
	stats    map[string]*TermStats
	docCount int
	tokens   int64
	size     int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		postings: make(map[string]map[string]int),
		stats:    make(map[string]*TermStats),
	}
}

// AddDocument indexes already analyzed tokens under docID. The caller
// guarantees docID is new.
func (m *MemoryIndex) AddDocument(docID string, tokens []tokenizer.Token) {
	tf := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		tf[tok.Term]++
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for term, n := range tf {
		docs, ok := m.postings[term]
		if !ok {
			docs = make(map[string]int)
			m.postings[term] = docs
			m.stats[term] = &TermStats{}
			m.size += int64(len(term)) + 48
		}
		docs[docID] = n
		st := m.stats[term]
		st.CorpusFrequency += int64(n)
		st.DocumentFrequency++
		m.size += int64(len(docID)) + 16
	}
	m.docCount++
	m.tokens += int64(len(tokens))
}

// Search returns term's postings ordered by DocID, or nil.
func (m *MemoryIndex) Search(term string) PostingList {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.list(term)
}

func (m *MemoryIndex) list(term string) PostingList {
	docs, ok := m.postings[term]
	if !ok {
		return nil
	}
	pl := make(PostingList, 0, len(docs))
	for docID, n := range docs {
		pl = append(pl, Posting{DocID: docID, Frequency: n})
	}
	pl.sortByDoc()
	return pl
}

// Stats returns term's buffered counts without building its postings.
func (m *MemoryIndex) Stats(term string) TermStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.stats[term]; ok {
		return *st
	}
	return TermStats{}
}

// Snapshot returns every term's postings ordered by term, ready for a
// segment writer.
func (m *MemoryIndex) Snapshot() []TermEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0, len(m.postings))
	for term := range m.postings {
		entries = append(entries, TermEntry{Term: term, Postings: m.list(term)})
	}
	slices.SortFunc(entries, func(a, b TermEntry) int {
		switch {
		case a.Term < b.Term:
			return -1
		case a.Term > b.Term:
			return 1
		}
		return 0
	})
	return entries
}

// Size is an estimate of the buffer's memory footprint in bytes.
func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.docCount
}

// TokenCount is the number of analyzed tokens buffered.
func (m *MemoryIndex) TokenCount() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens
}

// Absorb moves every document of other into m. The two indexes must hold
// disjoint documents; other is left unchanged.
func (m *MemoryIndex) Absorb(other *MemoryIndex) {
	if other == m {
		return
	}
	other.mu.RLock()
	defer other.mu.RUnlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	for term, src := range other.postings {
		docs, ok := m.postings[term]
		if !ok {
			docs = make(map[string]int, len(src))
			m.postings[term] = docs
			m.stats[term] = &TermStats{}
			m.size += int64(len(term)) + 48
		}
		st := m.stats[term]
		for docID, n := range src {
			docs[docID] = n
			st.CorpusFrequency += int64(n)
			st.DocumentFrequency++
			m.size += int64(len(docID)) + 16
		}
	}
	m.docCount += other.docCount
	m.tokens += other.tokens
}
