// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package index

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/poiesic/medvec/core"
	"github.com/poiesic/medvec/vectorstore"
)

// Flat is a brute-force index over a contiguous row-major matrix.
// It is immutable once built and safe for concurrent searches.
type Flat struct {
	matrix     []float32
	degenerate []bool
	rows       int
	dim        int
	version    uint64
}

// Build copies the snapshot's vectors into a new index.
func Build(snap *vectorstore.Snapshot) (*Flat, error) {
	rows, dim := snap.Len(), snap.Dim()
	f := &Flat{
		matrix:     make([]float32, rows*dim),
		degenerate: make([]bool, rows),
		rows:       rows,
		dim:        dim,
		version:    snap.Version(),
	}
	for i, v := range snap.Vectors() {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: row %d has dimension %d, index expects %d",
				core.ErrDimensionMismatch, i, len(v), dim)
		}
		copy(f.matrix[i*dim:], v)
		norm := core.Norm(v)
		f.degenerate[i] = norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0)
	}
	return f, nil
}

// Len returns the number of indexed rows.
func (f *Flat) Len() int {
	return f.rows
}

// Dim returns the indexed vector width.
func (f *Flat) Dim() int {
	return f.dim
}

// Version returns the store version the index was built from.
func (f *Flat) Version() uint64 {
	return f.version
}

// Search returns the min(k, Len()) rows with the highest inner product
// against query, best first.
func (f *Flat) Search(query []float32, k int) ([]core.Match, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", core.ErrQueryValidation, k)
	}
	if f.rows == 0 {
		return []core.Match{}, nil
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, index has %d",
			core.ErrDimensionMismatch, len(query), f.dim)
	}
	k = min(k, f.rows)

	h := make(candidateHeap, 0, k)
	for row := 0; row < f.rows; row++ {
		c := candidate{row: row, degenerate: f.degenerate[row]}
		if !c.degenerate {
			c.score = core.Dot(query, f.matrix[row*f.dim:(row+1)*f.dim])
			if math.IsNaN(float64(c.score)) {
				c.score = float32(math.Inf(-1))
			}
		}

		if len(h) < k {
			heap.Push(&h, c)
		} else if c.better(h[0]) {
			h[0] = c
			heap.Fix(&h, 0)
		}
	}

	matches := make([]core.Match, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		c := heap.Pop(&h).(candidate)
		matches[i] = core.Match{Position: c.row, Score: c.score}
	}
	return matches, nil
}

type candidate struct {
	row        int
	score      float32
	degenerate bool
}

// better reports whether c ranks ahead of o.
func (c candidate) better(o candidate) bool {
	if c.degenerate != o.degenerate {
		return !c.degenerate
	}
	if c.score != o.score {
		return c.score > o.score
	}
	return c.row < o.row
}

// candidateHeap keeps the worst retained candidate at the root.
type candidateHeap []candidate

func (h candidateHeap) Len() int           { return len(h) }
func (h candidateHeap) Less(i, j int) bool { return h[j].better(h[i]) }
func (h candidateHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap) Push(x any) {
	*h = append(*h, x.(candidate))
}

func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}
