package feeds

import "container/heap"

// minHeap orders posts oldest first so the root is the eviction candidate.
type minHeap[I any] []Post[I]

func (h minHeap[I]) Len() int           { return len(h) }
func (h minHeap[I]) Less(i, j int) bool { return h[i].Seq < h[j].Seq }
func (h minHeap[I]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *minHeap[I]) Push(x any) { *h = append(*h, x.(Post[I])) }

func (h *minHeap[I]) Pop() any {
	old := *h
	n := len(old)
	p := old[n-1]
	*h = old[:n-1]
	return p
}

// selectNewest offers every post of every source to a min-heap holding at
// most k posts, then drains it newest first.
func selectNewest[I any](sources [][]Post[I], k int) []Post[I] {
	h := make(minHeap[I], 0, min(k, 64)+1)
	for _, history := range sources {
		for _, p := range history {
			if len(h) == k && p.Seq <= h[0].Seq {
				continue
			}
			heap.Push(&h, p)
			if len(h) > k {
				heap.Pop(&h)
			}
		}
	}

	out := make([]Post[I], len(h))
	for i := len(h) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(Post[I])
	}
	return out
}
