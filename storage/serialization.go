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

package storage

import (
	"bytes"
	"fmt"
	"hash"
	"math"

	"github.com/go-crypt/x/blake2b"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/medvec/core"
)

// ChecksumSize is the length in bytes of the digest appended to persisted blobs.
const ChecksumSize = 32

// Manifest describes one persisted generation of a vector collection.
type Manifest struct {
	Generation string
	Rows       int
	Dim        int
}

// MarshalManifest serializes a Manifest to bytes.
func MarshalManifest(m Manifest) []byte {
	size := ord.String.Size(m.Generation) + varint.Int.Size(m.Rows) + varint.Int.Size(m.Dim)
	buf := make([]byte, size)
	n := ord.String.Marshal(m.Generation, buf)
	n += varint.Int.Marshal(m.Rows, buf[n:])
	varint.Int.Marshal(m.Dim, buf[n:])
	return buf
}

// UnmarshalManifest deserializes a Manifest and returns the bytes consumed.
func UnmarshalManifest(data []byte) (Manifest, int, error) {
	var (
		m     Manifest
		n, n1 int
		err   error
	)
	m.Generation, n, err = ord.String.Unmarshal(data)
	if err != nil {
		return m, 0, fmt.Errorf("%w: manifest generation: %w", ErrSerializationFailed, err)
	}
	m.Rows, n1, err = varint.Int.Unmarshal(data[n:])
	if err != nil {
		return m, 0, fmt.Errorf("%w: manifest rows: %w", ErrSerializationFailed, err)
	}
	n += n1
	m.Dim, n1, err = varint.Int.Unmarshal(data[n:])
	if err != nil {
		return m, 0, fmt.Errorf("%w: manifest dim: %w", ErrSerializationFailed, err)
	}
	if m.Rows < 0 || m.Dim < 0 {
		return m, 0, fmt.Errorf("%w: negative manifest shape %dx%d", ErrCorrupt, m.Rows, m.Dim)
	}
	if m.Rows > 0 && m.Dim == 0 {
		return m, 0, fmt.Errorf("%w: manifest has %d rows of dimension 0", ErrCorrupt, m.Rows)
	}
	return m, n + n1, nil
}

// MarshalID serializes an id to bytes.
func MarshalID(id string) []byte {
	buf := make([]byte, ord.String.Size(id))
	ord.String.Marshal(id, buf)
	return buf
}

// UnmarshalID deserializes an id and returns the bytes consumed.
func UnmarshalID(data []byte) (string, int, error) {
	id, n, err := ord.String.Unmarshal(data)
	if err != nil {
		return "", 0, fmt.Errorf("%w: id: %w", ErrSerializationFailed, err)
	}
	return id, n, nil
}

// VectorSize returns the encoded size of a dim-wide vector.
func VectorSize(dim int) int {
	return dim * raw.Float32.Size(0)
}

// VectorTableSize returns the encoded size of rows dim-wide vectors.
// ok is false when the shape is negative or the size does not fit in an int.
func VectorTableSize(rows, dim int) (size int, ok bool) {
	width := raw.Float32.Size(0)
	if rows < 0 || dim < 0 || dim > math.MaxInt/width {
		return 0, false
	}
	row := dim * width
	if row != 0 && rows > math.MaxInt/row {
		return 0, false
	}
	return rows * row, true
}

// MarshalVector appends the fixed-width encoding of vector to buf.
func MarshalVector(vector []float32, buf []byte) []byte {
	start := len(buf)
	buf = append(buf, make([]byte, VectorSize(len(vector)))...)
	n := start
	for _, v := range vector {
		n += raw.Float32.Marshal(v, buf[n:])
	}
	return buf
}

// UnmarshalVector decodes a dim-wide vector from the front of data.
func UnmarshalVector(data []byte, dim int) ([]float32, int, error) {
	size, ok := VectorTableSize(1, dim)
	if !ok {
		return nil, 0, fmt.Errorf("%w: vector dimension %d", ErrCorrupt, dim)
	}
	if len(data) < size {
		return nil, 0, ErrTruncatedData
	}
	vector := make([]float32, dim)
	n := 0
	for i := range vector {
		v, n1, err := raw.Float32.Unmarshal(data[n:])
		if err != nil {
			return nil, 0, fmt.Errorf("%w: vector component %d: %w", ErrSerializationFailed, i, err)
		}
		vector[i] = v
		n += n1
	}
	return vector, n, nil
}

// MarshalEntry serializes one (id, vector) pair.
func MarshalEntry(id string, vector []float32) []byte {
	buf := make([]byte, 0, ord.String.Size(id)+varint.Int.Size(len(vector))+VectorSize(len(vector)))
	buf = append(buf, MarshalID(id)...)
	dimBuf := make([]byte, varint.Int.Size(len(vector)))
	varint.Int.Marshal(len(vector), dimBuf)
	buf = append(buf, dimBuf...)
	return MarshalVector(vector, buf)
}

// UnmarshalEntry deserializes one (id, vector) pair.
func UnmarshalEntry(data []byte) (string, []float32, error) {
	id, n, err := UnmarshalID(data)
	if err != nil {
		return "", nil, err
	}
	dim, n1, err := varint.Int.Unmarshal(data[n:])
	if err != nil {
		return "", nil, fmt.Errorf("%w: entry dim: %w", ErrSerializationFailed, err)
	}
	if dim < 0 {
		return "", nil, fmt.Errorf("%w: negative entry dim", ErrCorrupt)
	}
	vector, _, err := UnmarshalVector(data[n+n1:], dim)
	if err != nil {
		return "", nil, err
	}
	return id, vector, nil
}

// NewChecksum returns the hash used to seal persisted blobs.
func NewChecksum() hash.Hash {
	h, err := blake2b.New(ChecksumSize, nil)
	if err != nil {
		// Only fails for an invalid size or oversized key.
		panic(err)
	}
	return h
}

// Seal appends a checksum of data to data.
func Seal(data []byte) []byte {
	h := NewChecksum()
	h.Write(data)
	return h.Sum(data)
}

// Unseal verifies the trailing checksum and returns the payload before it.
func Unseal(data []byte) ([]byte, error) {
	if len(data) < ChecksumSize {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, ErrTruncatedData)
	}
	payload := data[:len(data)-ChecksumSize]
	h := NewChecksum()
	h.Write(payload)
	if !bytes.Equal(h.Sum(nil), data[len(payload):]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	return payload, nil
}

// ValidateShape checks that ids and vectors form a consistent rows x dim table.
func ValidateShape(ids []string, vectors [][]float32) (int, error) {
	if len(ids) != len(vectors) {
		return 0, fmt.Errorf("%w: %d ids for %d vectors", core.ErrLengthMismatch, len(ids), len(vectors))
	}
	if len(vectors) == 0 {
		return 0, nil
	}
	dim := len(vectors[0])
	if dim == 0 {
		return 0, fmt.Errorf("%w: vector 0 is empty", core.ErrDimensionMismatch)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return 0, fmt.Errorf("%w: vector %d has dimension %d, expected %d", core.ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return dim, nil
}
