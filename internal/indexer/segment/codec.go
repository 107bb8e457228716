package segment

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/indexer/index"
)

var errTruncated = errors.New("truncated postings block")

// appendPostings encodes a DocID-ordered list as
//
//	count | (shared prefix len, suffix len, suffix, frequency)*
//
// with every integer a uvarint. Doc ids share long prefixes once sorted,
// so only the differing suffix is stored.
func appendPostings(buf []byte, pl index.PostingList) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(pl)))
	prev := ""
	for _, p := range pl {
		shared := commonPrefix(prev, p.DocID)
		suffix := p.DocID[shared:]
		buf = binary.AppendUvarint(buf, uint64(shared))
		buf = binary.AppendUvarint(buf, uint64(len(suffix)))
		buf = append(buf, suffix...)
		buf = binary.AppendUvarint(buf, uint64(p.Frequency))
		prev = p.DocID
	}
	return buf
}

func decodePostings(data []byte) (index.PostingList, error) {
	d := decoder{data: data}
	n := d.uvarint()
	if d.err != nil {
		return nil, d.err
	}
	if n > uint64(len(data)) {
		return nil, fmt.Errorf("postings count %d exceeds block size %d", n, len(data))
	}
	pl := make(index.PostingList, 0, n)
	prev := ""
	for i := uint64(0); i < n; i++ {
		shared := int(d.uvarint())
		suffix := d.bytes(int(d.uvarint()))
		freq := d.uvarint()
		if d.err != nil {
			return nil, d.err
		}
		if shared > len(prev) {
			return nil, fmt.Errorf("shared prefix %d longer than previous doc id %q", shared, prev)
		}
		docID := prev[:shared] + string(suffix)
		pl = append(pl, index.Posting{DocID: docID, Frequency: int(freq)})
		prev = docID
	}
	return pl, nil
}

func commonPrefix(a, b string) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

type decoder struct {
	data []byte
	err  error
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.data)
	if n <= 0 {
		d.err = errTruncated
		return 0
	}
	d.data = d.data[n:]
	return v
}

func (d *decoder) bytes(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > len(d.data) {
		d.err = errTruncated
		return nil
	}
	b := d.data[:n]
	d.data = d.data[n:]
	return b
}
