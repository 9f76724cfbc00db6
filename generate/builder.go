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

package generate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/medvec/core"
	"github.com/poiesic/medvec/storage"
	"github.com/poiesic/medvec/vectorstore"
)

// Mode selects how a run treats the existing store.
type Mode string

const (
	// ModeRebuild replaces the store with the embedded corpus.
	ModeRebuild Mode = "rebuild"
	// ModeAppend keeps stored records and embeds only new identifiers.
	ModeAppend Mode = "append"
)

// ParseMode converts a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeRebuild, "":
		return ModeRebuild, nil
	case ModeAppend:
		return ModeAppend, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// DocumentEmbedder embeds batches of canonical record texts.
// *ai.Generator satisfies it.
type DocumentEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config holds configuration for a generation run.
type Config struct {
	// PageSize is the number of records fetched from the source at a time
	PageSize int

	// Limit caps the number of records visited; 0 means the whole corpus
	Limit int

	// ReportInterval is how often to report progress (number of records)
	ReportInterval int

	// Mode is ModeRebuild or ModeAppend
	Mode Mode
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PageSize:       DefaultPageSize,
		ReportInterval: DefaultPageSize,
		Mode:           ModeRebuild,
	}
}

// Report summarizes a completed run.
type Report struct {
	Visited  int
	Embedded int
	Skipped  int
	Invalid  int
	Rows     int
	Dim      int
	Elapsed  time.Duration
}

// Builder orchestrates a generation run.
type Builder struct {
	source   storage.RecordSource
	embedder DocumentEmbedder
	store    *vectorstore.Store
	config   *Config
	progress io.Writer
	logger   *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder) error

// WithConfig replaces the default run configuration.
func WithConfig(config *Config) Option {
	return func(b *Builder) error {
		if config == nil {
			config = DefaultConfig()
		}
		if _, err := ParseMode(string(config.Mode)); err != nil {
			return err
		}
		b.config = config
		return nil
	}
}

// WithProgress sets where progress output is written (typically os.Stderr).
func WithProgress(w io.Writer) Option {
	return func(b *Builder) error {
		b.progress = w
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) error {
		if logger == nil {
			logger = slog.Default()
		}
		b.logger = logger
		return nil
	}
}

// NewBuilder creates a new builder.
func NewBuilder(source storage.RecordSource, embedder DocumentEmbedder, store *vectorstore.Store, opts ...Option) (*Builder, error) {
	if source == nil {
		return nil, ErrSourceRequired
	}
	if embedder == nil {
		return nil, ErrGeneratorRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}

	b := &Builder{
		source:   source,
		embedder: embedder,
		store:    store,
		config:   DefaultConfig(),
		progress: io.Discard,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	b.logger = b.logger.With("component", "builder")

	return b, nil
}

// Run embeds the corpus, writes it into the store and saves the store.
// Nothing is written or saved unless every batch embeds successfully.
func (b *Builder) Run(ctx context.Context) (*Report, error) {
	mode, err := ParseMode(string(b.config.Mode))
	if err != nil {
		return nil, err
	}

	if mode == ModeAppend {
		if err := b.loadExisting(ctx); err != nil {
			return nil, err
		}
	}

	iterator := NewRecordIterator(b.source, b.config.PageSize, b.config.Limit)
	total, err := iterator.Total(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting records: %w", err)
	}

	fmt.Fprintf(b.progress, "Embedding %d records (mode: %s, page size: %d)\n", total, mode, iterator.pageSize)
	tracker := NewProgressTracker(b.progress, total, b.config.ReportInterval)
	tracker.Start()

	report := &Report{}
	var (
		ids     []string
		vectors [][]float32
		seen    = map[string]struct{}{}
	)

	err = iterator.ForEach(ctx, func(records []*core.ArticleRecord) error {
		pageIDs, texts, skipped := b.prepare(records, mode, seen, report)
		tracker.Advance(len(records), skipped)
		report.Visited += len(records)
		if len(texts) == 0 {
			return nil
		}

		embedded, err := b.embedder.Embed(ctx, texts)
		if err != nil {
			return err
		}
		if len(embedded) != len(texts) {
			return fmt.Errorf("%w: %d vectors for %d texts", core.ErrLengthMismatch, len(embedded), len(texts))
		}

		ids = append(ids, pageIDs...)
		vectors = append(vectors, embedded...)
		report.Embedded += len(pageIDs)
		return nil
	})
	if err != nil {
		b.logger.Error("generation run aborted", "visited", report.Visited, "err", err)
		return nil, err
	}

	if err := b.write(mode, ids, vectors); err != nil {
		return nil, err
	}
	if err := b.store.Save(ctx); err != nil {
		return nil, err
	}

	tracker.Finish()
	report.Rows = b.store.Len()
	report.Dim = b.store.Dim()
	report.Elapsed = tracker.Elapsed()

	b.logger.Info("generation run complete",
		"mode", mode, "visited", report.Visited, "embedded", report.Embedded,
		"skipped", report.Skipped, "invalid", report.Invalid, "rows", report.Rows, "dim", report.Dim)
	fmt.Fprintf(b.progress, "Stored %d vectors of dimension %d in %v\n",
		report.Rows, report.Dim, report.Elapsed.Round(time.Millisecond))
	return report, nil
}

// prepare validates and formats a page, dropping invalid records, repeated
// identifiers and, in append mode, identifiers the store already holds.
func (b *Builder) prepare(records []*core.ArticleRecord, mode Mode, seen map[string]struct{}, report *Report) ([]string, []string, int) {
	ids := make([]string, 0, len(records))
	texts := make([]string, 0, len(records))
	skipped := 0

	for _, record := range records {
		if err := core.ValidateRecord(record); err != nil {
			b.logger.Warn("skipping record", "err", fmt.Errorf("%w: %w", core.ErrIngestion, err))
			report.Invalid++
			skipped++
			continue
		}
		if _, dup := seen[record.PMID]; dup {
			b.logger.Warn("skipping repeated identifier", "pmid", record.PMID)
			report.Skipped++
			skipped++
			continue
		}
		seen[record.PMID] = struct{}{}

		if mode == ModeAppend && b.store.Contains(record.PMID) {
			report.Skipped++
			skipped++
			continue
		}

		ids = append(ids, record.PMID)
		texts = append(texts, core.FormatRecord(record))
	}
	return ids, texts, skipped
}

func (b *Builder) write(mode Mode, ids []string, vectors [][]float32) error {
	if mode == ModeAppend {
		return b.store.Upsert(ids, vectors)
	}

	if len(ids) == 0 {
		b.logger.Warn("no records embedded, saving an empty store")
	}
	// A rebuild may switch models, so the old width does not bind it.
	return b.store.Replace(ids, vectors)
}

func (b *Builder) loadExisting(ctx context.Context) error {
	err := b.store.Load(ctx)
	switch {
	case err == nil:
		b.logger.Info("appending to existing store", "rows", b.store.Len(), "dim", b.store.Dim())
		return nil
	case errors.Is(err, storage.ErrNotFound):
		b.logger.Info("no existing store, starting empty")
		return nil
	default:
		return err
	}
}
