package index

// candidate pairs an internal node with its distance to the query.
type candidate struct {
	node uint32
	dist float32
}

// minHeap pops the closest candidate first.
type minHeap []candidate

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return h[i].dist < h[j].dist }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// maxHeap pops the farthest candidate first.
type maxHeap []candidate

func (h maxHeap) Len() int           { return len(h) }
func (h maxHeap) Less(i, j int) bool { return h[i].dist > h[j].dist }
func (h maxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// visitedSet marks nodes seen during one layer search. Clearing is O(1):
// bumping the generation invalidates every previous mark.
type visitedSet struct {
	marks []uint32
	gen   uint32
}

func newVisitedSet(n int) *visitedSet {
	return &visitedSet{marks: make([]uint32, n)}
}

func (v *visitedSet) reset() {
	v.gen++
	if v.gen == 0 {
		clear(v.marks)
		v.gen = 1
	}
}

// visit marks n and reports whether it was already marked.
func (v *visitedSet) visit(n uint32) bool {
	if v.marks[n] == v.gen {
		return true
	}
	v.marks[n] = v.gen
	return false
}
