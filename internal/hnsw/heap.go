package hnsw

import "container/heap"

// cand is a single candidate considered during search_layer: a slot and
// its distance to the query vector.
type cand struct {
	slot uint32
	dist float32
}

// maxHeap keeps the worst (largest) distance at the top, so the beam W
// can cheaply evict its worst member once it reaches ef candidates.
type maxHeap []cand

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(cand)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func newMaxHeap() *maxHeap {
	h := make(maxHeap, 0)
	heap.Init(&h)
	return &h
}

func (h *maxHeap) worst() cand { return (*h)[0] }

// addBounded pushes c, evicting the current worst if the heap is
// already at maxSize and c beats it. Reports whether c was kept.
func (h *maxHeap) addBounded(c cand, maxSize int) bool {
	if h.Len() < maxSize {
		heap.Push(h, c)
		return true
	}
	if c.dist < h.worst().dist {
		heap.Pop(h)
		heap.Push(h, c)
		return true
	}
	return false
}

// drainSorted empties the heap and returns its contents ordered from
// best (smallest distance) to worst.
func (h *maxHeap) drainSorted() []cand {
	n := h.Len()
	out := make([]cand, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(cand)
	}
	return out
}

// minHeap pops the closest candidate first; it drives search_layer's
// expansion frontier C.
type minHeap []cand

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(cand)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func newMinHeap() *minHeap {
	h := make(minHeap, 0)
	heap.Init(&h)
	return &h
}
