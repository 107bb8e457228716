package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/indexer/index"
)

// Reader serves lookups from one segment. The dictionary is held in memory;
// postings are read from disk on demand.
type Reader struct {
	file   *os.File
	path   string
	header SegmentHeader
	dict   []DictEntry
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := load(f, path)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func load(f *os.File, path string) (*Reader, error) {
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header, err := decodeHeader(headerBytes)
	if err != nil {
		return nil, err
	}

	dictData := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictData, header.DictOffset); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, header.DictOffset+header.DictSize); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	if want, got := binary.LittleEndian.Uint32(footer[0:4]), crc32.ChecksumIEEE(dictData); want != got {
		return nil, fmt.Errorf("dictionary checksum mismatch: stored %08x, computed %08x", want, got)
	}

	var dict []DictEntry
	if err := json.Unmarshal(dictData, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	if !slices.IsSortedFunc(dict, func(a, b DictEntry) int { return strings.Compare(a.Term, b.Term) }) {
		return nil, fmt.Errorf("dictionary is not sorted by term")
	}
	return &Reader{file: f, path: path, header: header, dict: dict}, nil
}

// Lookup returns term's dictionary entry without touching its postings.
func (r *Reader) Lookup(term string) (DictEntry, bool) {
	i, ok := slices.BinarySearchFunc(r.dict, term, func(e DictEntry, t string) int {
		return strings.Compare(e.Term, t)
	})
	if !ok {
		return DictEntry{}, false
	}
	return r.dict[i], true
}

// Search reads term's postings, or returns nil when the segment lacks it.
func (r *Reader) Search(term string) (index.PostingList, error) {
	entry, ok := r.Lookup(term)
	if !ok {
		return nil, nil
	}
	block := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(block, r.header.PostOffset+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings of %q: %w", term, err)
	}
	pl, err := decodePostings(block)
	if err != nil {
		return nil, fmt.Errorf("decoding postings of %q: %w", term, err)
	}
	return pl, nil
}

// DocIDs returns the set of documents with at least one posting in the
// segment. It reads the whole postings section.
func (r *Reader) DocIDs() (map[string]struct{}, error) {
	data := make([]byte, r.header.PostSize)
	if _, err := r.file.ReadAt(data, r.header.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings section: %w", err)
	}
	ids := make(map[string]struct{}, r.header.DocCount)
	for _, entry := range r.dict {
		end := entry.PostOffset + int64(entry.PostLen)
		if entry.PostOffset < 0 || end > int64(len(data)) {
			return nil, fmt.Errorf("postings of %q out of range", entry.Term)
		}
		pl, err := decodePostings(data[entry.PostOffset:end])
		if err != nil {
			return nil, fmt.Errorf("decoding postings of %q: %w", entry.Term, err)
		}
		for _, p := range pl {
			ids[p.DocID] = struct{}{}
		}
	}
	return ids, nil
}

func (r *Reader) Path() string { return r.path }

func (r *Reader) Terms() int { return len(r.dict) }

func (r *Reader) DocCount() uint32 { return r.header.DocCount }

func (r *Reader) Close() error {
	return r.file.Close()
}
