package retrieval

import (
	"container/heap"
	"sort"
)

// Candidate is one stored vector offered for ranking. Seq is the insertion
// order and breaks score ties (earlier wins).
type Candidate struct {
	Seq    int
	Vector []float32
}

// Ranked is a candidate's position in the input slice plus its score.
type Ranked struct {
	Index int
	Score float64
}

// TopK scores every candidate against query and returns the topK best,
// score descending, ties by ascending Seq. topK <= 0 returns nil.
func TopK(query []float32, candidates []Candidate, topK int) []Ranked {
	if topK <= 0 || len(candidates) == 0 {
		return nil
	}

	h := &rankHeap{}
	for i, c := range candidates {
		r := rankItem{Ranked: Ranked{Index: i, Score: CosineSimilarity(query, c.Vector)}, seq: c.Seq}
		if h.Len() < topK {
			heap.Push(h, r)
		} else if worse((*h)[0], r) {
			(*h)[0] = r
			heap.Fix(h, 0)
		}
	}

	items := []rankItem(*h)
	sort.Slice(items, func(i, j int) bool { return worse(items[j], items[i]) })

	out := make([]Ranked, len(items))
	for i, it := range items {
		out[i] = it.Ranked
	}
	return out
}

type rankItem struct {
	Ranked
	seq int
}

// worse reports whether a ranks below b.
func worse(a, b rankItem) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.seq > b.seq
}

// rankHeap is a min-heap with the worst-ranked item at the root.
type rankHeap []rankItem

func (h rankHeap) Len() int            { return len(h) }
func (h rankHeap) Less(i, j int) bool  { return worse(h[i], h[j]) }
func (h rankHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *rankHeap) Push(x interface{}) { *h = append(*h, x.(rankItem)) }
func (h *rankHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
