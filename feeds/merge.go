package feeds

import "container/heap"

// tail points at the next unread post of one source, walking backwards.
type tail[I any] struct {
	history []Post[I]
	pos     int
}

func (t tail[I]) head() Post[I] { return t.history[t.pos] }

// maxHeap orders source tails newest first.
type maxHeap[I any] []tail[I]

func (h maxHeap[I]) Len() int           { return len(h) }
func (h maxHeap[I]) Less(i, j int) bool { return h[i].head().Seq > h[j].head().Seq }
func (h maxHeap[I]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *maxHeap[I]) Push(x any) { *h = append(*h, x.(tail[I])) }

func (h *maxHeap[I]) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	*h = old[:n-1]
	return t
}

// mergeNewest performs a k-way merge over the sources starting from their
// newest posts and stops after k posts. Sources must be non-empty and sorted
// by ascending Seq.
func mergeNewest[I any](sources [][]Post[I], k int) []Post[I] {
	h := make(maxHeap[I], 0, len(sources))
	for _, history := range sources {
		h = append(h, tail[I]{history: history, pos: len(history) - 1})
	}
	heap.Init(&h)

	out := make([]Post[I], 0, min(k, 64))
	for len(out) < k && len(h) > 0 {
		t := &h[0]
		out = append(out, t.head())
		if t.pos == 0 {
			heap.Pop(&h)
			continue
		}
		t.pos--
		heap.Fix(&h, 0)
	}
	return out
}
