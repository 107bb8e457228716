// Package segment persists flushed index buffers as immutable .spdx files.
//
// Layout: a fixed header, the postings blocks, a JSON dictionary sorted by
// term, and a footer carrying the dictionary checksum.
package segment

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/indexer/index"
)

const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 3
	HeaderSize    int    = 64
	FooterSize    int    = 32
	Extension            = ".spdx"
)

var ErrEmptySegment = errors.New("segment has no terms")

type SegmentHeader struct {
	Magic      uint32
	Version    uint32
	TermCount  uint32
	DocCount   uint32
	CreatedAt  int64
	DictOffset int64
	DictSize   int64
	PostOffset int64
	PostSize   int64
}

func (h SegmentHeader) encode() []byte {
	b := make([]byte, HeaderSize)
	le := binary.LittleEndian
	le.PutUint32(b[0:4], h.Magic)
	le.PutUint32(b[4:8], h.Version)
	le.PutUint32(b[8:12], h.TermCount)
	le.PutUint32(b[12:16], h.DocCount)
	le.PutUint64(b[16:24], uint64(h.DictOffset))
	le.PutUint64(b[24:32], uint64(h.DictSize))
	le.PutUint64(b[32:40], uint64(h.PostOffset))
	le.PutUint64(b[40:48], uint64(h.PostSize))
	le.PutUint64(b[48:56], uint64(h.CreatedAt))
	return b
}

func decodeHeader(b []byte) (SegmentHeader, error) {
	le := binary.LittleEndian
	h := SegmentHeader{
		Magic:      le.Uint32(b[0:4]),
		Version:    le.Uint32(b[4:8]),
		TermCount:  le.Uint32(b[8:12]),
		DocCount:   le.Uint32(b[12:16]),
		DictOffset: int64(le.Uint64(b[16:24])),
		DictSize:   int64(le.Uint64(b[24:32])),
		PostOffset: int64(le.Uint64(b[32:40])),
		PostSize:   int64(le.Uint64(b[40:48])),
		CreatedAt:  int64(le.Uint64(b[48:56])),
	}
	if h.Magic != MagicBytes {
		return h, fmt.Errorf("invalid segment file: bad magic bytes %x", h.Magic)
	}
	if h.Version != FormatVersion {
		return h, fmt.Errorf("unsupported segment format version %d", h.Version)
	}
	if h.DictSize < 0 || h.DictOffset < int64(HeaderSize) {
		return h, fmt.Errorf("corrupt segment header: dictionary at %d size %d", h.DictOffset, h.DictSize)
	}
	return h, nil
}

// DictEntry locates a term's postings block, relative to the start of the
// postings section, and carries its collection counts.
type DictEntry struct {
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
	CorpusFreq int64  `json:"f"`
}

type Writer struct {
	dataDir string
	now     func() time.Time

	mu   sync.Mutex
	last int64
}

func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir, now: time.Now}
}

// Write stores entries, which must be sorted by term, as a new segment and
// returns its file name. The file only appears under its final name once
// fully synced.
func (w *Writer) Write(entries []index.TermEntry) (string, error) {
	if len(entries) == 0 {
		return "", ErrEmptySegment
	}
	if err := os.MkdirAll(w.dataDir, 0o755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}

	created := w.stamp()
	var postings []byte
	dict := make([]DictEntry, 0, len(entries))
	docs := make(map[string]struct{})
	for _, entry := range entries {
		start := len(postings)
		postings = appendPostings(postings, entry.Postings)
		dict = append(dict, DictEntry{
			Term:       entry.Term,
			PostOffset: int64(start),
			PostLen:    len(postings) - start,
			DocFreq:    len(entry.Postings),
			CorpusFreq: entry.Postings.CorpusFrequency(),
		})
		for _, p := range entry.Postings {
			docs[p.DocID] = struct{}{}
		}
	}
	dictData, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("encoding dictionary: %w", err)
	}

	header := SegmentHeader{
		Magic:      MagicBytes,
		Version:    FormatVersion,
		TermCount:  uint32(len(entries)),
		DocCount:   uint32(len(docs)),
		CreatedAt:  created.Unix(),
		PostOffset: int64(HeaderSize),
		PostSize:   int64(len(postings)),
		DictOffset: int64(HeaderSize + len(postings)),
		DictSize:   int64(len(dictData)),
	}
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(dictData))
	binary.LittleEndian.PutUint32(footer[4:8], header.DocCount)
	binary.LittleEndian.PutUint64(footer[8:16], uint64(header.DictOffset))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(header.DictSize))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(header.PostSize))

	name := fmt.Sprintf("seg_%d%s", created.UnixNano(), Extension)
	finalPath := filepath.Join(w.dataDir, name)
	tmpPath := finalPath + ".tmp"
	if err := writeSynced(tmpPath, header.encode(), postings, dictData, footer); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	return name, nil
}

// stamp returns the creation time of the next segment. Stamps strictly
// increase, so back-to-back flushes never share a file name.
func (w *Writer) stamp() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	t := w.now()
	if n := t.UnixNano(); n <= w.last {
		t = time.Unix(0, w.last+1)
	}
	w.last = t.UnixNano()
	return t
}

func writeSynced(path string, sections ...[]byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating segment file: %w", err)
	}
	for _, s := range sections {
		if _, err := f.Write(s); err != nil {
			f.Close()
			return fmt.Errorf("writing segment file: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing segment file: %w", err)
	}
	return f.Close()
}
