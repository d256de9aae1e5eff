// Package vectorindex implements an immutable flat inner-product index.
//
// Vectors are expected to be unit-normalized, which makes inner product
// equivalent to cosine similarity. Position i of the index corresponds to
// position i of the caller's chunk metadata.
package vectorindex

import (
	"container/heap"
	"fmt"
	"math"
	"sort"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// NoMatch marks an unfilled result slot.
const NoMatch = -1

// noMatchScore is the score carried by NoMatch slots.
var noMatchScore = float32(-math.MaxFloat32)

// Result is one search slot: a similarity score and a vector position.
type Result struct {
	Score    float32
	Position int
}

// Matched reports whether the slot holds a real vector.
func (r Result) Matched() bool { return r.Position != NoMatch }

// Builder accumulates vectors. It is single-use: Build hands the data to an Index.
type Builder struct {
	dim  int
	data []float32
	done bool
}

// NewBuilder creates a builder for vectors of dimension dim.
func NewBuilder(dim int) (*Builder, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid dim: %d", dim)
	}
	return &Builder{dim: dim}, nil
}

// Add appends vectors in order.
func (b *Builder) Add(vectors ...[]float32) error {
	if b.done {
		return fmt.Errorf("builder already built")
	}
	for i, v := range vectors {
		if len(v) != b.dim {
			return fmt.Errorf("vector %d has dim %d, want %d: %w", i, len(v), b.dim, domain.ErrVectorDimMismatch)
		}
	}
	for _, v := range vectors {
		b.data = append(b.data, v...)
	}
	return nil
}

// Build freezes the accumulated vectors into an Index.
func (b *Builder) Build() *Index {
	b.done = true
	return &Index{dim: b.dim, n: len(b.data) / b.dim, data: b.data}
}

// Index is an immutable set of vectors searched by exhaustive inner product.
type Index struct {
	dim  int
	n    int
	data []float32
}

// FromVectors builds an Index in one step.
func FromVectors(dim int, vectors [][]float32) (*Index, error) {
	b, err := NewBuilder(dim)
	if err != nil {
		return nil, err
	}
	if err := b.Add(vectors...); err != nil {
		return nil, err
	}
	return b.Build(), nil
}

// Dim returns the vector dimension.
func (ix *Index) Dim() int { return ix.dim }

// Len returns the number of stored vectors.
func (ix *Index) Len() int { return ix.n }

// Vector returns a copy of the vector at position i.
func (ix *Index) Vector(i int) []float32 {
	out := make([]float32, ix.dim)
	copy(out, ix.data[i*ix.dim:(i+1)*ix.dim])
	return out
}

// Search returns exactly k slots ordered by descending score. When k exceeds
// Len, trailing slots are NoMatch; callers filter them with Matched.
func (ix *Index) Search(query []float32, k int) ([]Result, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("query dim %d, index dim %d: %w", len(query), ix.dim, domain.ErrVectorDimMismatch)
	}
	if k <= 0 {
		return nil, nil
	}

	h := make(minHeap, 0, min(k, ix.n))
	for i := 0; i < ix.n; i++ {
		s := dot(query, ix.data[i*ix.dim:(i+1)*ix.dim])
		if math.IsNaN(float64(s)) {
			continue
		}
		r := Result{Score: s, Position: i}
		if len(h) < k {
			heap.Push(&h, r)
			continue
		}
		if better(r, h[0]) {
			h[0] = r
			heap.Fix(&h, 0)
		}
	}

	out := make([]Result, 0, k)
	out = append(out, h...)
	sort.Slice(out, func(a, b int) bool { return better(out[a], out[b]) })
	for len(out) < k {
		out = append(out, Result{Score: noMatchScore, Position: NoMatch})
	}
	return out, nil
}

// Matched drops NoMatch slots, keeping order.
func Matched(results []Result) []Result {
	out := results[:0:0]
	for _, r := range results {
		if r.Matched() {
			out = append(out, r)
		}
	}
	return out
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// better orders by score desc, then position asc for deterministic ties.
func better(a, b Result) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Position < b.Position
}

// minHeap keeps the worst retained result at the root.
type minHeap []Result

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)        { *h = append(*h, x.(Result)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
