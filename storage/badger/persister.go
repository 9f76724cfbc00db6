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

package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/poiesic/medvec/core"
	"github.com/poiesic/medvec/storage"
)

// maxPreallocRows caps the slice capacity taken from a manifest before its
// rows are read.
const maxPreallocRows = 1 << 16

// Persister implements storage.Persister on BadgerDB.
//
// Each Save writes its rows under a fresh generation prefix and then flips a
// single manifest key to point at it, so readers see either the old or the
// new collection. The superseded generation is dropped afterwards.
type Persister struct {
	backend   *Backend
	ownsStore bool
	logger    *slog.Logger
}

// NewPersister opens (or creates) a BadgerDB-backed persister at path.
//
// Returns storage.Persister interface to enforce abstraction.
func NewPersister(path string) (storage.Persister, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, fmt.Errorf("%w: opening badger store: %w", core.ErrPersistence, err)
	}
	p := newPersister(backend, true)
	if err := p.pruneOrphans(); err != nil {
		p.logger.Warn("failed to prune orphaned generations", "err", err)
	}
	return p, nil
}

// NewPersisterWithBackend creates a persister over an existing backend.
// The caller keeps ownership of the backend.
func NewPersisterWithBackend(backend *Backend) storage.Persister {
	return newPersister(backend, false)
}

func newPersister(backend *Backend, owns bool) *Persister {
	return &Persister{
		backend:   backend,
		ownsStore: owns,
		logger:    slog.Default().With("component", "badger-persister"),
	}
}

// Save writes ids and vectors as a new generation and makes it current.
func (p *Persister) Save(ctx context.Context, ids []string, vectors [][]float32) error {
	if p.backend.IsClosed() {
		return fmt.Errorf("%w: %w", core.ErrPersistence, storage.ErrStorageClosed)
	}
	dim, err := storage.ValidateShape(ids, vectors)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrPersistence, err)
	}

	manifest := storage.Manifest{
		Generation: uuid.NewString(),
		Rows:       len(ids),
		Dim:        dim,
	}

	if err := p.writeEntries(ctx, manifest.Generation, ids, vectors); err != nil {
		p.dropGeneration(manifest.Generation)
		return fmt.Errorf("%w: writing entries: %w", core.ErrPersistence, err)
	}

	var previous string
	err = p.backend.WithTx(func(tx *badger.Txn) error {
		old, err := readManifest(tx)
		switch {
		case err == nil:
			previous = old.Generation
		case !errors.Is(err, storage.ErrNotFound):
			p.logger.Warn("replacing unreadable manifest", "err", err)
		}
		if err := tx.Set([]byte(manifestKey), storage.Seal(storage.MarshalManifest(manifest))); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		p.dropGeneration(manifest.Generation)
		return fmt.Errorf("%w: committing manifest: %w", core.ErrPersistence, err)
	}

	if previous != "" {
		p.dropGeneration(previous)
	}

	p.logger.Info("saved vectors", "rows", manifest.Rows, "dim", manifest.Dim, "generation", manifest.Generation)
	return nil
}

func (p *Persister) writeEntries(ctx context.Context, generation string, ids []string, vectors [][]float32) error {
	wb := p.backend.NewWriteBatch()
	defer wb.Cancel()

	for i := range ids {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		value := storage.Seal(storage.MarshalEntry(ids[i], vectors[i]))
		if err := wb.Set(makeEntryKey(generation, i), value); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (p *Persister) dropGeneration(generation string) {
	if err := p.backend.DropPrefix(makeGenerationPrefix(generation)); err != nil {
		p.logger.Warn("failed to drop generation", "generation", generation, "err", err)
	}
}

// Load returns the collection named by the current manifest.
// The manifest and its entries are read from one consistent snapshot.
func (p *Persister) Load(ctx context.Context) ([]string, [][]float32, error) {
	if p.backend.IsClosed() {
		return nil, nil, fmt.Errorf("%w: %w", core.ErrPersistence, storage.ErrStorageClosed)
	}

	var (
		ids     []string
		vectors [][]float32
	)
	err := p.backend.WithTx(func(tx *badger.Txn) error {
		manifest, err := readManifest(tx)
		if err != nil {
			return err
		}

		// Rows is only trusted once the entries have been counted.
		capacity := min(manifest.Rows, maxPreallocRows)
		ids = make([]string, 0, capacity)
		vectors = make([][]float32, 0, capacity)

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeGenerationPrefix(manifest.Generation)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		row := 0
		for iter.Rewind(); iter.Valid(); iter.Next() {
			if row%1000 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			item := iter.Item()
			if _, r, ok := parseEntryKey(item.Key()); !ok || r != row {
				return fmt.Errorf("%w: expected row %d at key %q", storage.ErrCorrupt, row, item.Key())
			}

			var (
				id     string
				vector []float32
			)
			err := item.Value(func(val []byte) error {
				payload, err := storage.Unseal(val)
				if err != nil {
					return err
				}
				id, vector, err = storage.UnmarshalEntry(payload)
				return err
			})
			if err != nil {
				return fmt.Errorf("row %d: %w", row, err)
			}
			if len(vector) != manifest.Dim {
				return fmt.Errorf("%w: row %d has dimension %d, manifest says %d",
					storage.ErrCorrupt, row, len(vector), manifest.Dim)
			}
			ids = append(ids, id)
			vectors = append(vectors, vector)
			row++
		}

		if row != manifest.Rows {
			return fmt.Errorf("%w: found %d rows, manifest says %d", storage.ErrCorrupt, row, manifest.Rows)
		}
		return nil
	}, false)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			p.logger.Error("failed to load vectors", "err", err)
		}
		return nil, nil, fmt.Errorf("%w: %w", core.ErrPersistence, err)
	}
	return ids, vectors, nil
}

// Exists reports whether a manifest has been committed.
func (p *Persister) Exists(ctx context.Context) (bool, error) {
	if p.backend.IsClosed() {
		return false, fmt.Errorf("%w: %w", core.ErrPersistence, storage.ErrStorageClosed)
	}
	var found bool
	err := p.backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get([]byte(manifestKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		found = err == nil
		return err
	}, false)
	if err != nil {
		return false, fmt.Errorf("%w: %w", core.ErrPersistence, err)
	}
	return found, nil
}

// Close closes the underlying backend if the persister opened it.
func (p *Persister) Close() error {
	if !p.ownsStore || p.backend.IsClosed() {
		return nil
	}
	return p.backend.Close()
}

// pruneOrphans drops entries left behind by a Save that never committed.
func (p *Persister) pruneOrphans() error {
	var (
		current string
		orphans = map[string]struct{}{}
	)
	err := p.backend.WithTx(func(tx *badger.Txn) error {
		manifest, err := readManifest(tx)
		if err == nil {
			current = manifest.Generation
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(entryPrefix + ":")
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			generation, _, ok := parseEntryKey(iter.Item().Key())
			if ok && generation != current {
				orphans[generation] = struct{}{}
			}
		}
		return nil
	}, false)
	if err != nil {
		return err
	}

	for generation := range orphans {
		p.logger.Info("dropping orphaned generation", "generation", generation)
		p.dropGeneration(generation)
	}
	return nil
}

func readManifest(tx *badger.Txn) (storage.Manifest, error) {
	item, err := tx.Get([]byte(manifestKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return storage.Manifest{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Manifest{}, err
	}

	var manifest storage.Manifest
	err = item.Value(func(val []byte) error {
		payload, err := storage.Unseal(val)
		if err != nil {
			return err
		}
		manifest, _, err = storage.UnmarshalManifest(payload)
		return err
	})
	return manifest, err
}
