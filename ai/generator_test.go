package ai_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/medvec/ai"
	"github.com/poiesic/medvec/ai/mock"
	"github.com/poiesic/medvec/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGenerator(t *testing.T, embedder ai.Embedder, opts ...ai.GeneratorOption) *ai.Generator {
	t.Helper()
	opts = append([]ai.GeneratorOption{ai.WithRetry(1, time.Millisecond)}, opts...)
	gen, err := ai.NewGenerator(embedder, opts...)
	require.NoError(t, err)
	t.Cleanup(gen.Release)
	return gen
}

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("abstract %d", i)
	}
	return out
}

func TestNewGeneratorRequiresEmbedder(t *testing.T) {
	_, err := ai.NewGenerator(nil)
	assert.ErrorIs(t, err, ai.ErrEmbedderRequired)
}

func TestEmbedBatchedChunking(t *testing.T) {
	tests := []struct {
		name      string
		count     int
		batchSize int
		want      []int
	}{
		{"even split", 6, 2, []int{2, 2, 2}},
		{"short tail", 5, 2, []int{2, 2, 1}},
		{"batch larger than input", 3, 10, []int{3}},
		{"zero batch clamps to one", 3, 0, []int{1, 1, 1}},
		{"negative batch clamps to one", 2, -4, []int{1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mock.NewMockEmbedderWithDimension(4)
			gen := newTestGenerator(t, m)

			vectors, err := gen.EmbedBatched(context.Background(), texts(tt.count), tt.batchSize)
			require.NoError(t, err)
			assert.Len(t, vectors, tt.count)
			assert.Equal(t, tt.want, m.BatchSizes())
		})
	}
}

func TestEmbedBatchedPreservesOrder(t *testing.T) {
	m := mock.NewMockEmbedderWithDimension(4)
	gen := newTestGenerator(t, m, ai.WithConcurrency(4))

	input := texts(17)
	vectors, err := gen.EmbedBatched(context.Background(), input, 3)
	require.NoError(t, err)

	for i, text := range input {
		assert.Equal(t, mock.GenerateDeterministicVector(text, 4), vectors[i], "position %d", i)
	}
}

func TestEmbedBatchedSingleBatchMatchesSplit(t *testing.T) {
	input := texts(9)

	whole, err := newTestGenerator(t, mock.NewMockEmbedderWithDimension(6)).
		EmbedBatched(context.Background(), input, len(input))
	require.NoError(t, err)

	split, err := newTestGenerator(t, mock.NewMockEmbedderWithDimension(6)).
		EmbedBatched(context.Background(), input, 2)
	require.NoError(t, err)

	assert.Equal(t, whole, split)
}

func TestEmbedBatchedEmptyInput(t *testing.T) {
	m := mock.NewMockEmbedder()
	gen := newTestGenerator(t, m)

	_, err := gen.Embed(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrEmbedding)
	assert.Zero(t, m.CallCount())
}

func TestEmbedBatchedFailureIsAllOrNothing(t *testing.T) {
	m := mock.NewMockEmbedderWithDimension(4)
	var calls atomic.Int32
	m.EmbedTextsFunc = func(ctx context.Context, batch []string) ([][]float32, error) {
		if calls.Add(1) == 2 {
			return nil, errors.New("model crashed")
		}
		out := make([][]float32, len(batch))
		for i, text := range batch {
			out[i] = mock.GenerateDeterministicVector(text, 4)
		}
		return out, nil
	}
	gen := newTestGenerator(t, m)

	vectors, err := gen.EmbedBatched(context.Background(), texts(6), 2)
	assert.ErrorIs(t, err, core.ErrEmbedding)
	assert.ErrorContains(t, err, "model crashed")
	assert.Nil(t, vectors)
}

func TestEmbedBatchedRetriesTransientFailure(t *testing.T) {
	m := mock.NewMockEmbedderWithDimension(4)
	var calls atomic.Int32
	m.EmbedTextsFunc = func(ctx context.Context, batch []string) ([][]float32, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("connection reset")
		}
		out := make([][]float32, len(batch))
		for i := range out {
			out[i] = []float32{1, 0, 0, 0}
		}
		return out, nil
	}
	gen, err := ai.NewGenerator(m, ai.WithRetry(3, time.Millisecond))
	require.NoError(t, err)
	defer gen.Release()

	vectors, err := gen.Embed(context.Background(), texts(2))
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbedBatchedCountMismatch(t *testing.T) {
	m := mock.NewMockEmbedderWithDimension(4)
	m.EmbedTextsFunc = func(ctx context.Context, batch []string) ([][]float32, error) {
		return [][]float32{{1, 0, 0, 0}}, nil
	}
	gen := newTestGenerator(t, m)

	_, err := gen.EmbedBatched(context.Background(), texts(3), 3)
	assert.ErrorIs(t, err, core.ErrEmbedding)
}

func TestEmbedBatchedInconsistentDimension(t *testing.T) {
	m := mock.NewMockEmbedderWithDimension(4)
	m.EmbedTextsFunc = func(ctx context.Context, batch []string) ([][]float32, error) {
		if batch[0] == "abstract 0" {
			return [][]float32{{1, 0}}, nil
		}
		return [][]float32{{1, 0, 0}}, nil
	}
	gen := newTestGenerator(t, m)

	_, err := gen.EmbedBatched(context.Background(), texts(2), 1)
	assert.ErrorIs(t, err, core.ErrEmbedding)
}

func TestEmbedBatchedCancelledContext(t *testing.T) {
	gen := newTestGenerator(t, mock.NewMockEmbedder())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gen.Embed(ctx, texts(4))
	assert.Error(t, err)
}

func TestEmbedQuery(t *testing.T) {
	m := mock.NewMockEmbedderWithDimension(5)
	gen := newTestGenerator(t, m)

	t.Run("returns vector", func(t *testing.T) {
		vector, err := gen.EmbedQuery(context.Background(), "beta blockers")
		require.NoError(t, err)
		assert.Equal(t, mock.GenerateDeterministicVector("beta blockers", 5), vector)
	})

	t.Run("rejects blank text without calling model", func(t *testing.T) {
		m.Reset()
		_, err := gen.EmbedQuery(context.Background(), "   ")
		assert.ErrorIs(t, err, core.ErrEmbedding)
		assert.Zero(t, m.CallCount())
	})

	t.Run("wraps model failure", func(t *testing.T) {
		m.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
			return nil, errors.New("offline")
		}
		defer m.Reset()

		_, err := gen.EmbedQuery(context.Background(), "beta blockers")
		assert.ErrorIs(t, err, core.ErrEmbedding)
	})
}
