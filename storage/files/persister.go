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

package files

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/poiesic/medvec/core"
	"github.com/poiesic/medvec/storage"
)

const (
	vectorsMagic = "MDVV"
	idsMagic     = "MDVI"

	tmpSuffix    = ".tmp"
	backupSuffix = ".bak"
)

// Persister implements storage.Persister over a vectors file and an ids file.
type Persister struct {
	vectorsPath string
	idsPath     string
	logger      *slog.Logger
}

// NewPersister creates a persister for the given file pair.
// The parent directories are created on first Save.
//
// Returns storage.Persister interface to enforce abstraction.
func NewPersister(vectorsPath, idsPath string) (storage.Persister, error) {
	return newPersister(vectorsPath, idsPath)
}

func newPersister(vectorsPath, idsPath string) (*Persister, error) {
	if vectorsPath == "" || idsPath == "" {
		return nil, fmt.Errorf("%w: both vectors and ids paths are required", core.ErrPersistence)
	}
	if filepath.Clean(vectorsPath) == filepath.Clean(idsPath) {
		return nil, fmt.Errorf("%w: vectors and ids paths must differ", core.ErrPersistence)
	}
	return &Persister{
		vectorsPath: vectorsPath,
		idsPath:     idsPath,
		logger:      slog.Default().With("component", "file-persister", "vectors", vectorsPath),
	}, nil
}

// Save writes ids and vectors as a new generation and replaces the previous pair.
func (p *Persister) Save(ctx context.Context, ids []string, vectors [][]float32) error {
	dim, err := storage.ValidateShape(ids, vectors)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrPersistence, err)
	}
	manifest := storage.Manifest{
		Generation: uuid.NewString(),
		Rows:       len(ids),
		Dim:        dim,
	}

	for _, path := range []string{p.vectorsPath, p.idsPath} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("%w: creating directory: %w", core.ErrPersistence, err)
		}
	}

	vectorsTmp := p.vectorsPath + tmpSuffix
	idsTmp := p.idsPath + tmpSuffix
	defer os.Remove(vectorsTmp)
	defer os.Remove(idsTmp)

	if err := writeFileSync(vectorsTmp, encodeVectors(manifest, vectors)); err != nil {
		return fmt.Errorf("%w: writing vectors: %w", core.ErrPersistence, err)
	}
	if err := writeFileSync(idsTmp, encodeIDs(manifest, ids)); err != nil {
		return fmt.Errorf("%w: writing ids: %w", core.ErrPersistence, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := p.swap(vectorsTmp, idsTmp); err != nil {
		return fmt.Errorf("%w: %w", core.ErrPersistence, err)
	}

	p.logger.Info("saved vectors", "rows", manifest.Rows, "dim", manifest.Dim, "generation", manifest.Generation)
	return nil
}

// swap moves the current pair aside, renames the new pair into place and
// drops the backup. If a rename fails the backup is restored.
func (p *Persister) swap(vectorsTmp, idsTmp string) error {
	vectorsBak := p.vectorsPath + backupSuffix
	idsBak := p.idsPath + backupSuffix

	hadVectors, err := moveIfExists(p.vectorsPath, vectorsBak)
	if err != nil {
		return fmt.Errorf("backing up vectors: %w", err)
	}
	hadIDs, err := moveIfExists(p.idsPath, idsBak)
	if err != nil {
		p.restore(hadVectors, vectorsBak, p.vectorsPath)
		return fmt.Errorf("backing up ids: %w", err)
	}

	if err := os.Rename(vectorsTmp, p.vectorsPath); err != nil {
		p.restore(hadVectors, vectorsBak, p.vectorsPath)
		p.restore(hadIDs, idsBak, p.idsPath)
		return fmt.Errorf("replacing vectors: %w", err)
	}
	if err := os.Rename(idsTmp, p.idsPath); err != nil {
		p.restore(hadVectors, vectorsBak, p.vectorsPath)
		p.restore(hadIDs, idsBak, p.idsPath)
		return fmt.Errorf("replacing ids: %w", err)
	}

	for _, bak := range []string{vectorsBak, idsBak} {
		if err := os.Remove(bak); err != nil && !errors.Is(err, fs.ErrNotExist) {
			p.logger.Warn("failed to remove backup", "path", bak, "err", err)
		}
	}
	return nil
}

func (p *Persister) restore(had bool, backup, target string) {
	if !had {
		os.Remove(target)
		return
	}
	if err := os.Rename(backup, target); err != nil {
		p.logger.Error("failed to restore backup", "path", target, "err", err)
	}
}

// Load reads the current pair, falling back to a backup pair left behind by
// an interrupted Save.
func (p *Persister) Load(ctx context.Context) ([]string, [][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	ids, vectors, err := loadPair(p.vectorsPath, p.idsPath)
	if err == nil {
		return ids, vectors, nil
	}

	bakIDs, bakVectors, bakErr := loadPair(p.vectorsPath+backupSuffix, p.idsPath+backupSuffix)
	if bakErr == nil {
		p.logger.Warn("primary vectors unreadable, recovered from backup", "err", err)
		return bakIDs, bakVectors, nil
	}

	if !errors.Is(err, storage.ErrNotFound) {
		p.logger.Error("failed to load vectors", "err", err)
	}
	return nil, nil, fmt.Errorf("%w: %w", core.ErrPersistence, err)
}

// Exists reports whether both files of the pair are present.
func (p *Persister) Exists(ctx context.Context) (bool, error) {
	for _, path := range []string{p.vectorsPath, p.idsPath} {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return false, nil
			}
			return false, fmt.Errorf("%w: %w", core.ErrPersistence, err)
		}
	}
	return true, nil
}

// Close is a no-op; files are opened per operation.
func (p *Persister) Close() error {
	return nil
}

func loadPair(vectorsPath, idsPath string) ([]string, [][]float32, error) {
	vectorsData, err := readFile(vectorsPath)
	if err != nil {
		return nil, nil, err
	}
	idsData, err := readFile(idsPath)
	if err != nil {
		return nil, nil, err
	}

	vm, vectors, err := decodeVectors(vectorsData)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", vectorsPath, err)
	}
	im, ids, err := decodeIDs(idsData)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", idsPath, err)
	}
	if vm != im {
		return nil, nil, fmt.Errorf("%w: ids generation %s (%d rows) does not match vectors generation %s (%d rows)",
			storage.ErrCorrupt, im.Generation, im.Rows, vm.Generation, vm.Rows)
	}
	return ids, vectors, nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, path)
	}
	return data, err
}

func moveIfExists(from, to string) (bool, error) {
	if err := os.Rename(from, to); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
