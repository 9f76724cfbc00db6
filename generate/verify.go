package generate

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/poiesic/medvec/core"
	"github.com/poiesic/medvec/storage"
	"github.com/poiesic/medvec/vectorstore"
)

// DefaultTolerance is the largest per-element difference at which a stored
// row still counts as matching a fresh embedding.
const DefaultTolerance = 1e-6

// Verification is the outcome of re-embedding one stored record.
type Verification struct {
	ID           string
	Positions    []int
	MatchingRows []int
	MaxDeviation float64
	OK           bool
}

// Verifier re-embeds stored records and compares them with their rows.
type Verifier struct {
	source    storage.RecordSource
	embedder  DocumentEmbedder
	store     *vectorstore.Store
	tolerance float64
	logger    *slog.Logger
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithTolerance sets the per-element tolerance. Non-positive values are ignored.
func WithTolerance(tolerance float64) VerifierOption {
	return func(v *Verifier) {
		if tolerance > 0 {
			v.tolerance = tolerance
		}
	}
}

// WithVerifierLogger sets a custom logger.
func WithVerifierLogger(logger *slog.Logger) VerifierOption {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

func NewVerifier(source storage.RecordSource, embedder DocumentEmbedder, store *vectorstore.Store, opts ...VerifierOption) (*Verifier, error) {
	if source == nil {
		return nil, ErrSourceRequired
	}
	if embedder == nil {
		return nil, ErrGeneratorRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}

	v := &Verifier{
		source:    source,
		embedder:  embedder,
		store:     store,
		tolerance: DefaultTolerance,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = v.logger.With("component", "verifier")
	return v, nil
}

// Verify embeds the canonical text of id again and compares the result,
// row by row, with every stored row for id. OK is true when at least one
// row matches within the tolerance.
func (v *Verifier) Verify(ctx context.Context, id string) (*Verification, error) {
	snap := v.store.Snapshot()
	positions := snap.Positions(id)
	if len(positions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrIDNotStored, id)
	}

	record, err := v.source.Record(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := core.ValidateRecord(record); err != nil {
		return nil, err
	}

	vectors, err := v.embedder.Embed(ctx, []string{core.FormatRecord(record)})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: %d vectors for 1 text", core.ErrLengthMismatch, len(vectors))
	}
	fresh := core.Normalize(vectors[0])
	if len(fresh) != snap.Dim() {
		return nil, fmt.Errorf("%w: fresh embedding has dimension %d, store has %d",
			core.ErrDimensionMismatch, len(fresh), snap.Dim())
	}

	result := &Verification{ID: id, Positions: positions}
	for _, pos := range positions {
		deviation := maxDeviation(snap.Vector(pos), fresh)
		result.MaxDeviation = math.Max(result.MaxDeviation, deviation)
		if deviation <= v.tolerance {
			result.MatchingRows = append(result.MatchingRows, pos)
		}
	}
	result.OK = len(result.MatchingRows) > 0

	if !result.OK {
		v.logger.Warn("stored vector does not match a fresh embedding",
			"id", id, "positions", positions, "max_deviation", result.MaxDeviation)
	}
	return result, nil
}

func maxDeviation(a, b []float32) float64 {
	var worst float64
	for i := range a {
		d := math.Abs(float64(a[i]) - float64(b[i]))
		if math.IsNaN(d) {
			return math.Inf(1)
		}
		worst = math.Max(worst, d)
	}
	return worst
}
