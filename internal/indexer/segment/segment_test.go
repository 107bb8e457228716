package segment

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/indexer/index"
)

func writeSegment(t *testing.T, entries []index.TermEntry) string {
	t.Helper()
	dir := t.TempDir()
	name, err := NewWriter(dir).Write(entries)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	return filepath.Join(dir, name)
}

func TestWriteThenRead(t *testing.T) {
	path := writeSegment(t, []index.TermEntry{
		{Term: "alpha", Postings: index.PostingList{
			{DocID: "AP880212-0001", Frequency: 2},
			{DocID: "AP880212-0017", Frequency: 1},
		}},
		{Term: "beta", Postings: index.PostingList{
			{DocID: "AP880212-0017", Frequency: 4},
		}},
	})
	r, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()

	if r.Terms() != 2 || r.DocCount() != 2 {
		t.Errorf("Terms()=%d DocCount()=%d", r.Terms(), r.DocCount())
	}
	entry, ok := r.Lookup("alpha")
	if !ok {
		t.Fatal("alpha missing from dictionary")
	}
	if entry.DocFreq != 2 || entry.CorpusFreq != 3 {
		t.Errorf("alpha entry = %+v", entry)
	}
	pl, err := r.Search("alpha")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(pl) != 2 || pl[0].DocID != "AP880212-0001" || pl[1].DocID != "AP880212-0017" || pl[1].Frequency != 1 {
		t.Errorf("alpha postings = %v", pl)
	}
	if pl, err := r.Search("gamma"); err != nil || pl != nil {
		t.Errorf("Search(gamma) = %v, %v", pl, err)
	}
	ids, err := r.DocIDs()
	if err != nil {
		t.Fatalf("DocIDs: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("DocIDs() = %v", ids)
	}
	for _, id := range []string{"AP880212-0001", "AP880212-0017"} {
		if _, ok := ids[id]; !ok {
			t.Errorf("DocIDs() is missing %s", id)
		}
	}
}

func TestPostingsCodec(t *testing.T) {
	in := index.PostingList{
		{DocID: "doc-1", Frequency: 1},
		{DocID: "doc-10", Frequency: 300},
		{DocID: "doc-2", Frequency: 7},
		{DocID: "x", Frequency: 1},
	}
	out, err := decodePostings(appendPostings(nil, in))
	if err != nil {
		t.Fatalf("decodePostings: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("decoded %d postings, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("posting %d = %v, want %v", i, out[i], in[i])
		}
	}

	block := appendPostings(nil, in)
	if _, err := decodePostings(block[:len(block)-3]); err == nil {
		t.Error("expected an error for a truncated block")
	}
}

func TestWriteEmptySegment(t *testing.T) {
	if _, err := NewWriter(t.TempDir()).Write(nil); err != ErrEmptySegment {
		t.Errorf("err = %v, want ErrEmptySegment", err)
	}
}

func TestWriterNamesSegmentsByTime(t *testing.T) {
	w := NewWriter(t.TempDir())
	w.now = func() time.Time { return time.Unix(0, 42) }
	name, err := w.Write([]index.TermEntry{{Term: "a1", Postings: index.PostingList{{DocID: "d", Frequency: 1}}}})
	if err != nil {
		t.Fatal(err)
	}
	if name != "seg_42.spdx" {
		t.Errorf("name = %q", name)
	}
	// A second flush within the same clock tick gets the next name.
	name, err = w.Write([]index.TermEntry{{Term: "b2", Postings: index.PostingList{{DocID: "d", Frequency: 1}}}})
	if err != nil {
		t.Fatal(err)
	}
	if name != "seg_43.spdx" {
		t.Errorf("second name = %q", name)
	}
}

func TestOpenReaderRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.spdx")
	if err := os.WriteFile(path, make([]byte, HeaderSize), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenReader(path); err == nil {
		t.Error("expected bad magic error")
	}
}

func TestOpenReaderDetectsCorruptDictionary(t *testing.T) {
	path := writeSegment(t, []index.TermEntry{
		{Term: "alpha", Postings: index.PostingList{{DocID: "d1", Frequency: 1}}},
	})
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-FooterSize-2] ^= 0xff
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenReader(path); err == nil {
		t.Error("expected checksum mismatch")
	}
}
