package storage

import (
	"context"

	"github.com/poiesic/medvec/core"
)

// Persister saves and restores a vector collection as one unit.
// Implementations must be thread-safe.
type Persister interface {
	// Save replaces any previously persisted state with ids and vectors.
	// ids and vectors must have equal length and every vector the same width.
	// On failure the previous state remains loadable.
	Save(ctx context.Context, ids []string, vectors [][]float32) error

	// Load returns the most recently saved ids and vectors.
	// Returns ErrNotFound if nothing has been saved and ErrCorrupt if the
	// persisted state fails an integrity check.
	Load(ctx context.Context) ([]string, [][]float32, error)

	// Exists reports whether a saved state is present.
	Exists(ctx context.Context) (bool, error)

	// Close releases resources held by the persister.
	Close() error
}

// RecordSource is a read-only, page-oriented view of the article corpus.
// Iteration order is stable across calls.
type RecordSource interface {
	// Count returns the total number of records.
	Count(ctx context.Context) (int, error)

	// Page returns up to limit records starting at offset in stable order.
	// A short or empty page means the end of the corpus was reached.
	Page(ctx context.Context, offset, limit int) ([]*core.ArticleRecord, error)

	// Record returns the record with the given PMID.
	// Returns ErrNotFound if it doesn't exist.
	Record(ctx context.Context, id string) (*core.ArticleRecord, error)

	// ExternalReference returns the PMCID for a PMID, or "" if it has none.
	// Returns ErrNotFound if the PMID doesn't exist.
	ExternalReference(ctx context.Context, id string) (string, error)

	// Close closes the source and releases resources.
	Close() error
}
