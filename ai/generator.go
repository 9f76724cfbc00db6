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

package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/medvec/core"
)

const (
	// DefaultBatchSize is the number of texts sent to the model per call.
	DefaultBatchSize = 10

	defaultMaxAttempts = 3
	defaultRetryDelay  = time.Second
)

// Generator turns text into embedding vectors using a shared Embedder.
//
// Texts are processed in consecutive chunks of at most the batch size. Chunks
// are dispatched to a worker pool; with the default concurrency of 1 calls to
// the embedder are serialized, which is required for embedders that are not
// reentrant. Each chunk is retried with exponential backoff before the whole
// call fails.
type Generator struct {
	embedder    Embedder
	batchSize   int
	concurrency int
	pool        *ants.Pool
	maxAttempts int
	retryDelay  time.Duration
	logger      *slog.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator) error

// WithBatchSize sets the default chunk size. Values below 1 become 1.
func WithBatchSize(size int) GeneratorOption {
	return func(g *Generator) error {
		g.batchSize = max(size, 1)
		return nil
	}
}

// WithConcurrency sets how many chunks may be embedded at the same time.
// Only raise this above 1 for embedders that tolerate concurrent calls.
func WithConcurrency(n int) GeneratorOption {
	return func(g *Generator) error {
		g.concurrency = max(n, 1)
		return nil
	}
}

// WithRetry sets the number of attempts per chunk and the base backoff delay.
func WithRetry(maxAttempts int, baseDelay time.Duration) GeneratorOption {
	return func(g *Generator) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		g.maxAttempts = maxAttempts
		g.retryDelay = baseDelay
		return nil
	}
}

// WithGeneratorLogger sets a custom logger.
// Default is slog.Default().
func WithGeneratorLogger(logger *slog.Logger) GeneratorOption {
	return func(g *Generator) error {
		if logger == nil {
			logger = slog.Default()
		}
		g.logger = logger
		return nil
	}
}

// NewGenerator creates a Generator around embedder.
// Call Release when the generator is no longer needed.
func NewGenerator(embedder Embedder, opts ...GeneratorOption) (*Generator, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	g := &Generator{
		embedder:    embedder,
		batchSize:   DefaultBatchSize,
		concurrency: 1,
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	g.logger = g.logger.With("component", "embedding-generator")

	pool, err := ants.NewPool(g.concurrency)
	if err != nil {
		return nil, err
	}
	g.pool = pool

	return g, nil
}

// BatchSize returns the default chunk size.
func (g *Generator) BatchSize() int {
	return g.batchSize
}

// Embed embeds texts using the generator's default batch size.
func (g *Generator) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return g.EmbedBatched(ctx, texts, g.batchSize)
}

// EmbedBatched embeds texts in chunks of batchSize, clamped to [1, len(texts)].
// The result is positionally aligned with texts. Any chunk failure aborts the
// call; partial results are never returned.
func (g *Generator) EmbedBatched(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts to embed", core.ErrEmbedding)
	}
	batchSize = clampBatchSize(batchSize, len(texts))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([][]float32, len(texts))
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	g.logger.Debug("embedding texts", "count", len(texts), "batchSize", batchSize)
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))

		wg.Add(1)
		task := func() {
			defer wg.Done()
			if runCtx.Err() != nil {
				return
			}
			vectors, err := g.embedChunk(runCtx, texts[start:end])
			if err != nil {
				fail(err)
				return
			}
			copy(results[start:end], vectors)
		}
		if err := g.pool.Submit(task); err != nil {
			wg.Done()
			fail(fmt.Errorf("%w: submitting batch: %w", core.ErrEmbedding, err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		g.logger.Error("failed to generate embeddings", "count", len(texts), "err", firstErr)
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dim := len(results[0])
	for i, vector := range results {
		if len(vector) == 0 || len(vector) != dim {
			return nil, fmt.Errorf("%w: text %d produced a %d-dimensional vector, expected %d",
				core.ErrEmbedding, i, len(vector), dim)
		}
	}
	return results, nil
}

// EmbedQuery embeds a single text through the query path.
func (g *Generator) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", core.ErrEmbedding)
	}

	var vector []float32
	err := RetryWithBackoff(ctx, func() error {
		var err error
		vector, err = g.embedder.EmbedText(ctx, text)
		if err != nil {
			return err
		}
		if len(vector) == 0 {
			return fmt.Errorf("embedder returned an empty vector")
		}
		return nil
	}, g.maxAttempts, g.retryDelay)
	if err != nil {
		g.logger.Error("failed to embed query", "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrEmbedding, err)
	}
	return vector, nil
}

// Release stops the worker pool.
func (g *Generator) Release() {
	if g.pool != nil {
		g.pool.Release()
	}
}

func (g *Generator) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := RetryWithBackoff(ctx, func() error {
		var err error
		vectors, err = g.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(texts), len(vectors))
		}
		return nil
	}, g.maxAttempts, g.retryDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: batch of %d texts after %d attempts: %w",
			core.ErrEmbedding, len(texts), g.maxAttempts, err)
	}
	return vectors, nil
}

func clampBatchSize(size, remaining int) int {
	if size < 1 {
		size = 1
	}
	if size > remaining {
		size = remaining
	}
	return size
}
