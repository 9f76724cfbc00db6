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

package vectorstore

// Snapshot is an immutable view of the store at one version.
// Callers must not modify the slices it returns.
type Snapshot struct {
	ids     []string
	vectors [][]float32
	dim     int
	version uint64
}

// Len returns the number of rows.
func (s *Snapshot) Len() int {
	return len(s.ids)
}

// Dim returns the vector width, or 0 if no width has been established.
func (s *Snapshot) Dim() int {
	return s.dim
}

// Version identifies the store state the snapshot was taken from. It changes
// on every successful mutation.
func (s *Snapshot) Version() uint64 {
	return s.version
}

// IDs returns the identifiers in row order.
func (s *Snapshot) IDs() []string {
	return s.ids
}

// Vectors returns the unit-normalized vectors in row order.
func (s *Snapshot) Vectors() [][]float32 {
	return s.vectors
}

// ID returns the identifier at row i.
func (s *Snapshot) ID(i int) string {
	return s.ids[i]
}

// Vector returns the vector at row i.
func (s *Snapshot) Vector(i int) []float32 {
	return s.vectors[i]
}

// Positions returns every row whose identifier equals id.
func (s *Snapshot) Positions(id string) []int {
	var positions []int
	for i, candidate := range s.ids {
		if candidate == id {
			positions = append(positions, i)
		}
	}
	return positions
}
