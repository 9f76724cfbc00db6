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

package medvec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/medvec/ai"
	"github.com/poiesic/medvec/ai/openai"
	"github.com/poiesic/medvec/config"
	"github.com/poiesic/medvec/generate"
	"github.com/poiesic/medvec/search"
	"github.com/poiesic/medvec/storage"
	"github.com/poiesic/medvec/storage/badger"
	"github.com/poiesic/medvec/storage/files"
	"github.com/poiesic/medvec/storage/sqlite"
	"github.com/poiesic/medvec/vectorstore"
)

// ErrNoSource is returned by operations that need the record database when
// none was found at the configured path.
var ErrNoSource = errors.New("record source not available")

// Database wires a record source, a vector store and an embedding provider
// from one configuration.
type Database struct {
	cfg       *config.Config
	source    storage.RecordSource
	store     *vectorstore.Store
	provider  ai.AIProvider
	generator *ai.Generator
	logger    *slog.Logger

	// loadErr is the corruption found by Open. It stands until the store
	// moves past loadVersion.
	loadErr     error
	loadVersion uint64
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	provider ai.AIProvider
	logger   *slog.Logger
}

// WithProvider supplies the embedding provider instead of connecting to the
// configured host. The Database closes it on Close.
func WithProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// Open validates cfg, loads the persisted store if there is one and opens
// the record source. A missing store starts empty; a missing source only
// disables generation and verification. A corrupt store also starts empty,
// but everything except a rebuild reports StoreError until it is rewritten.
func Open(ctx context.Context, cfg *config.Config, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db := &Database{cfg: cfg, logger: options.logger}

	persister, err := openPersister(cfg)
	if err != nil {
		return nil, err
	}
	db.store, err = vectorstore.New(vectorstore.WithPersister(persister), vectorstore.WithLogger(db.logger))
	if err != nil {
		persister.Close()
		return nil, err
	}
	if err := db.store.Load(ctx); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			db.logger.Info("no persisted store yet", "backend", cfg.Store.Backend, "path", cfg.Store.Path)
		case errors.Is(err, storage.ErrCorrupt):
			// Only a rebuild may run until the store is rewritten.
			db.logger.Warn("persisted store is corrupt, starting empty", "path", cfg.Store.Path, "err", err)
			db.loadErr = err
			db.loadVersion = db.store.Version()
		default:
			db.Close()
			return nil, err
		}
	}

	db.source, err = sqlite.Open(cfg.Source.Path)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			db.Close()
			return nil, err
		}
		db.logger.Warn("record source not found", "path", cfg.Source.Path)
		db.source = nil
	}

	db.provider = options.provider
	if db.provider == nil {
		db.provider, err = openai.NewProvider(cfg.AIConfig())
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	genOpts := append(cfg.GeneratorOptions(), ai.WithGeneratorLogger(db.logger))
	db.generator, err = ai.NewGenerator(db.provider.Embedder(), genOpts...)
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func openPersister(cfg *config.Config) (storage.Persister, error) {
	switch cfg.Store.Backend {
	case config.BackendBadger:
		return badger.NewPersister(cfg.Store.Path)
	case config.BackendFiles:
		return files.NewPersister(cfg.VectorsPath(), cfg.IDsPath())
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", config.ErrInvalidConfig, cfg.Store.Backend)
	}
}

func (db *Database) Close() error {
	var errs []error

	if db.generator != nil {
		db.generator.Release()
	}
	if db.provider != nil {
		if err := db.provider.Close(); err != nil {
			db.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if db.source != nil {
		if err := db.source.Close(); err != nil {
			db.logger.Error("error closing record source", "err", err)
			errs = append(errs, err)
		}
	}
	if db.store != nil {
		if err := db.store.Close(); err != nil {
			db.logger.Error("error closing vector store", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (db *Database) Config() *config.Config {
	return db.cfg
}

func (db *Database) Store() *vectorstore.Store {
	return db.store
}

// StoreError returns the error that kept Open from loading the persisted
// store, or nil once a write has replaced the in-memory contents.
func (db *Database) StoreError() error {
	if db.loadErr != nil && db.store.Version() == db.loadVersion {
		return db.loadErr
	}
	return nil
}

// Source returns the record source, or ErrNoSource.
func (db *Database) Source() (storage.RecordSource, error) {
	if db.source == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSource, db.cfg.Source.Path)
	}
	return db.source, nil
}

func (db *Database) Generator() *ai.Generator {
	return db.generator
}

// NewBuilder creates a generation run in mode. Caller options are applied
// after the configured ones.
func (db *Database) NewBuilder(mode generate.Mode, opts ...generate.Option) (*generate.Builder, error) {
	if mode != generate.ModeRebuild {
		if err := db.StoreError(); err != nil {
			return nil, err
		}
	}
	source, err := db.Source()
	if err != nil {
		return nil, err
	}
	base := []generate.Option{
		generate.WithConfig(db.cfg.GenerateConfig(mode)),
		generate.WithLogger(db.logger),
	}
	return generate.NewBuilder(source, db.generator, db.store, append(base, opts...)...)
}

func (db *Database) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	if err := db.StoreError(); err != nil {
		return nil, err
	}
	base := []search.Option{search.WithLogger(db.logger)}
	if db.source != nil {
		base = append(base, search.WithReferences(db.source))
	}
	return search.NewSearcher(db.store, db.generator, append(base, opts...)...)
}

func (db *Database) NewVerifier(opts ...generate.VerifierOption) (*generate.Verifier, error) {
	if err := db.StoreError(); err != nil {
		return nil, err
	}
	source, err := db.Source()
	if err != nil {
		return nil, err
	}
	base := []generate.VerifierOption{generate.WithVerifierLogger(db.logger)}
	return generate.NewVerifier(source, db.generator, db.store, append(base, opts...)...)
}
