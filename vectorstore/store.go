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

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/poiesic/medvec/core"
	"github.com/poiesic/medvec/storage"
)

// Store is the in-memory vector collection. It is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	ids       []string
	vectors   [][]float32
	positions map[string]int
	dim       int
	version   uint64

	persister storage.Persister
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store) error

// WithPersister sets the backend used by Save and Load.
func WithPersister(p storage.Persister) Option {
	return func(s *Store) error {
		s.persister = p
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// New creates an empty store.
func New(opts ...Option) (*Store, error) {
	s := &Store{
		positions: map[string]int{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "vector-store")
	return s, nil
}

// Write replaces the whole collection with ids and vectors.
// It fails without changing the store if the lengths differ, an id is blank
// or repeated, or any vector's width disagrees with the established dimension.
func (s *Store) Write(ids []string, vectors [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dim, err := s.validate(ids, vectors, s.dim)
	if err != nil {
		return err
	}
	s.replace(ids, vectors, dim)
	s.logger.Debug("wrote vectors", "rows", len(ids), "dim", s.dim, "version", s.version)
	return nil
}

// Replace is Write without the established dimension: the batch sets a new
// one, and an empty batch leaves the store empty with no dimension. Readers
// see either the old collection or the new one. On failure the store is
// unchanged.
func (s *Store) Replace(ids []string, vectors [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dim, err := s.validate(ids, vectors, 0)
	if err != nil {
		return err
	}
	if s.dim != 0 && dim != 0 && dim != s.dim {
		s.logger.Info("dimension changed", "from", s.dim, "to", dim)
	}
	s.replace(ids, vectors, dim)
	s.logger.Debug("replaced vectors", "rows", len(ids), "dim", s.dim, "version", s.version)
	return nil
}

// replace installs normalized copies. Must be called with the lock held.
func (s *Store) replace(ids []string, vectors [][]float32, dim int) {
	newIDs := make([]string, len(ids))
	copy(newIDs, ids)
	newVectors := normalizeAll(vectors)
	positions := make(map[string]int, len(ids))
	for i, id := range newIDs {
		positions[id] = i
	}

	s.swap(newIDs, newVectors, positions, dim)
}

// Upsert replaces the vectors of ids already present and appends the rest,
// preserving existing row order. Validation matches Write.
func (s *Store) Upsert(ids []string, vectors [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dim, err := s.validate(ids, vectors, s.dim)
	if err != nil {
		return err
	}

	newIDs := make([]string, len(s.ids), len(s.ids)+len(ids))
	copy(newIDs, s.ids)
	newVectors := make([][]float32, len(s.vectors), len(s.vectors)+len(ids))
	copy(newVectors, s.vectors)
	positions := make(map[string]int, len(s.positions)+len(ids))
	for id, pos := range s.positions {
		positions[id] = pos
	}

	replaced := 0
	for i, id := range ids {
		vector := core.Normalize(vectors[i])
		if pos, ok := positions[id]; ok {
			newVectors[pos] = vector
			replaced++
			continue
		}
		positions[id] = len(newIDs)
		newIDs = append(newIDs, id)
		newVectors = append(newVectors, vector)
	}

	s.swap(newIDs, newVectors, positions, dim)
	s.logger.Debug("upserted vectors", "replaced", replaced, "added", len(ids)-replaced, "rows", len(newIDs))
	return nil
}

// Contains reports whether id is stored.
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.positions[id]
	return ok
}

// Snapshot returns an immutable view of the current state.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Snapshot{
		ids:     s.ids,
		vectors: s.vectors,
		dim:     s.dim,
		version: s.version,
	}
}

// Len returns the number of stored rows.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// Dim returns the established vector width, or 0 if none.
func (s *Store) Dim() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Version returns a counter that changes on every successful mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Reset empties the store and forgets the established dimension.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swap(nil, nil, map[string]int{}, 0)
}

// Save persists the current state through the configured persister.
func (s *Store) Save(ctx context.Context) error {
	if s.persister == nil {
		return fmt.Errorf("%w: %w", core.ErrPersistence, ErrPersisterRequired)
	}
	snap := s.Snapshot()
	if err := s.persister.Save(ctx, snap.ids, snap.vectors); err != nil {
		s.logger.Error("failed to save vectors", "err", err)
		return err
	}
	s.logger.Info("saved store", "rows", snap.Len(), "dim", snap.Dim())
	return nil
}

// Load replaces the store's contents with the persisted state. Loaded
// vectors are renormalized and the dimension is taken from the loaded data.
// On failure the store is unchanged.
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return fmt.Errorf("%w: %w", core.ErrPersistence, ErrPersisterRequired)
	}

	ids, vectors, err := s.persister.Load(ctx)
	if err != nil {
		return err
	}
	dim, err := storage.ValidateShape(ids, vectors)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrPersistence, err)
	}

	positions := make(map[string]int, len(ids))
	for i, id := range ids {
		if _, dup := positions[id]; dup {
			s.logger.Warn("persisted store repeats identifier", "id", id, "position", i)
			continue
		}
		positions[id] = i
	}

	s.mu.Lock()
	s.swap(ids, normalizeAll(vectors), positions, dim)
	s.mu.Unlock()

	s.logger.Info("loaded store", "rows", len(ids), "dim", dim)
	return nil
}

// Close closes the persister, if any.
func (s *Store) Close() error {
	if s.persister == nil {
		return nil
	}
	return s.persister.Close()
}

// validate checks a batch against dim (0 when none is established) and
// returns the dimension the store will have after the write.
func (s *Store) validate(ids []string, vectors [][]float32, dim int) (int, error) {
	if len(ids) != len(vectors) {
		return 0, fmt.Errorf("%w: %d ids for %d vectors", core.ErrLengthMismatch, len(ids), len(vectors))
	}

	seen := make(map[string]struct{}, len(ids))
	for i, id := range ids {
		if strings.TrimSpace(id) == "" {
			return 0, fmt.Errorf("%w at position %d", ErrEmptyID, i)
		}
		if _, dup := seen[id]; dup {
			return 0, fmt.Errorf("%w: %s", core.ErrDuplicateID, id)
		}
		seen[id] = struct{}{}

		if dim == 0 {
			dim = len(vectors[i])
			if dim == 0 {
				return 0, fmt.Errorf("%w: vector %d is empty", core.ErrDimensionMismatch, i)
			}
		}
		if len(vectors[i]) != dim {
			return 0, fmt.Errorf("%w: vector %d has dimension %d, expected %d",
				core.ErrDimensionMismatch, i, len(vectors[i]), dim)
		}
	}
	return dim, nil
}

func (s *Store) swap(ids []string, vectors [][]float32, positions map[string]int, dim int) {
	s.ids = ids
	s.vectors = vectors
	s.positions = positions
	s.dim = dim
	s.version++
}

func normalizeAll(vectors [][]float32) [][]float32 {
	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		out[i] = core.Normalize(v)
	}
	return out
}
