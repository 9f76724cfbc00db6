package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/poiesic/medvec/core"
	"github.com/poiesic/medvec/index"
	"github.com/poiesic/medvec/storage"
	"github.com/poiesic/medvec/vectorstore"
)

// QueryEmbedder turns query text into a vector.
// *ai.Generator satisfies it.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ReferenceLookup resolves an identifier to its full-text reference.
// storage.RecordSource satisfies it.
type ReferenceLookup interface {
	ExternalReference(ctx context.Context, id string) (string, error)
}

// Searcher answers top-k similarity queries over a vector store.
// It is safe for concurrent use.
type Searcher struct {
	store      *vectorstore.Store
	embedder   QueryEmbedder
	references ReferenceLookup
	logger     *slog.Logger

	mu    sync.Mutex
	index *index.Flat
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithReferences attaches full-text references to results.
func WithReferences(lookup ReferenceLookup) Option {
	return func(s *Searcher) error {
		s.references = lookup
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(store *vectorstore.Store, embedder QueryEmbedder, opts ...Option) (*Searcher, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		store:    store,
		embedder: embedder,
		logger:   slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "searcher")

	return s, nil
}

// Search returns up to topK stored identifiers most similar to query, best first.
func (s *Searcher) Search(ctx context.Context, query string, topK int) ([]*core.SearchResult, error) {
	return s.SearchWithMonitor(ctx, query, topK, nil)
}

// SearchWithMonitor is Search with callbacks at each stage.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query string, topK int, monitor SearchMonitor) ([]*core.SearchResult, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	if err := core.ValidateQuery(query, topK); err != nil {
		return nil, err
	}
	monitor.Start(query, topK)

	snap := s.store.Snapshot()
	if snap.Len() == 0 {
		s.logger.Debug("store is empty, nothing to search")
		results := []*core.SearchResult{}
		monitor.Finish(results)
		return results, nil
	}

	embedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}
	embedding = core.Normalize(embedding)
	monitor.AfterQueryEmbedding(embedding)

	if len(embedding) != snap.Dim() {
		return nil, fmt.Errorf("%w: query embedding has dimension %d, store has %d",
			core.ErrDimensionMismatch, len(embedding), snap.Dim())
	}

	idx, rebuilt, err := s.indexFor(snap)
	if err != nil {
		return nil, err
	}
	if rebuilt {
		monitor.IndexRebuilt(idx.Len(), idx.Version())
	}

	matches, err := idx.Search(embedding, topK)
	if err != nil {
		s.logger.Error("error searching index", "err", err)
		return nil, err
	}
	monitor.AfterIndexSearch(matches)

	// Positions are resolved against the snapshot the index was built from.
	results := make([]*core.SearchResult, len(matches))
	for i, m := range matches {
		results[i] = &core.SearchResult{
			ID:    snap.ID(m.Position),
			Score: m.Score,
		}
	}
	s.attachReferences(ctx, results)

	s.logger.Debug("search complete", "query", query, "topK", topK, "results", len(results))
	monitor.Finish(results)
	return results, nil
}

// Rebuild builds the index from the store's current contents.
func (s *Searcher) Rebuild() error {
	_, _, err := s.indexFor(s.store.Snapshot())
	return err
}

// IndexState reports whether the cached index matches the store.
func (s *Searcher) IndexState() IndexState {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.index == nil:
		return IndexAbsent
	case s.index.Version() != s.store.Version():
		return IndexStale
	default:
		return IndexBuilt
	}
}

// indexFor returns an index built from exactly snap, building it if the
// cached one is missing or from another version.
func (s *Searcher) indexFor(snap *vectorstore.Snapshot) (*index.Flat, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index != nil && s.index.Version() == snap.Version() {
		return s.index, false, nil
	}

	idx, err := index.Build(snap)
	if err != nil {
		s.logger.Error("failed to build index", "err", err)
		return nil, false, err
	}

	// Only cache if the snapshot is still the latest; an older snapshot's
	// index is used for this query alone.
	if snap.Version() == s.store.Version() {
		s.index = idx
	}
	s.logger.Debug("built index", "rows", idx.Len(), "dim", idx.Dim(), "version", idx.Version())
	return idx, true, nil
}

func (s *Searcher) attachReferences(ctx context.Context, results []*core.SearchResult) {
	if s.references == nil {
		return
	}
	for _, r := range results {
		ref, err := s.references.ExternalReference(ctx, r.ID)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				s.logger.Warn("reference lookup failed", "id", r.ID, "err", err)
			}
			continue
		}
		r.Reference = ref
	}
}
