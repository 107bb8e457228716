package index

import "slices"

// Posting is a term's frequency in one document. Term positions are not
// kept: every scorer and the feedback model work on bags of words.
type Posting struct {
	DocID     string
	Frequency int
}

// PostingList is ordered by DocID unless noted otherwise.
type PostingList []Posting

// CorpusFrequency is the total number of occurrences across the list.
func (pl PostingList) CorpusFrequency() int64 {
	var total int64
	for _, p := range pl {
		total += int64(p.Frequency)
	}
	return total
}

func (pl PostingList) sortByDoc() {
	slices.SortFunc(pl, func(a, b Posting) int {
		switch {
		case a.DocID < b.DocID:
			return -1
		case a.DocID > b.DocID:
			return 1
		}
		return 0
	})
}

// Merge combines lists from several segments into one DocID-ordered list.
// A document found in more than one list keeps its largest frequency.
func Merge(lists ...PostingList) PostingList {
	var n int
	for _, l := range lists {
		n += len(l)
	}
	if n == 0 {
		return nil
	}
	seen := make(map[string]int, n)
	out := make(PostingList, 0, n)
	for _, l := range lists {
		for _, p := range l {
			if i, ok := seen[p.DocID]; ok {
				out[i].Frequency = max(out[i].Frequency, p.Frequency)
				continue
			}
			seen[p.DocID] = len(out)
			out = append(out, p)
		}
	}
	out.sortByDoc()
	return out
}

type TermEntry struct {
	Term     string
	Postings PostingList
}
