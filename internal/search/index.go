package search

import (
	"container/heap"
	"fmt"
)

// FlatIndex is an exact nearest-neighbour index over squared Euclidean
// distance. It is built per query and never updated.
type FlatIndex struct {
	dim     int
	vectors [][]float32
}

// NewFlatIndex creates an empty index for vectors of length dim.
func NewFlatIndex(dim int) *FlatIndex {
	return &FlatIndex{dim: dim}
}

// Add appends v. Its position is its index in query results.
func (x *FlatIndex) Add(v []float32) error {
	if len(v) != x.dim {
		return fmt.Errorf("vector has %d dimensions, index expects %d", len(v), x.dim)
	}
	x.vectors = append(x.vectors, v)
	return nil
}

// Len is the number of indexed vectors.
func (x *FlatIndex) Len() int { return len(x.vectors) }

// Neighbor is one query hit.
type Neighbor struct {
	Index    int
	Distance float32
}

// Query returns the k nearest vectors to q in ascending distance. Equal
// distances keep index order. k larger than Len returns everything.
func (x *FlatIndex) Query(q []float32, k int) ([]Neighbor, error) {
	if len(q) != x.dim {
		return nil, fmt.Errorf("query has %d dimensions, index expects %d", len(q), x.dim)
	}
	if k <= 0 || len(x.vectors) == 0 {
		return nil, nil
	}
	k = min(k, len(x.vectors))

	// Max-heap of the k best so far; the root is the worst kept hit.
	h := make(worstFirst, 0, k)
	for i, v := range x.vectors {
		d := SquaredL2(q, v)
		n := Neighbor{Index: i, Distance: d}
		if len(h) < k {
			heap.Push(&h, n)
			continue
		}
		if better(n, h[0]) {
			h[0] = n
			heap.Fix(&h, 0)
		}
	}

	out := make([]Neighbor, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(Neighbor)
	}
	return out, nil
}

// SquaredL2 is the squared Euclidean distance between equal-length vectors.
func SquaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// better orders by distance, then by index.
func better(a, b Neighbor) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.Index < b.Index
}

type worstFirst []Neighbor

func (h worstFirst) Len() int           { return len(h) }
func (h worstFirst) Less(i, j int) bool { return better(h[j], h[i]) }
func (h worstFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *worstFirst) Push(x any)        { *h = append(*h, x.(Neighbor)) }
func (h *worstFirst) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}
