package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/medvec/ai"
	"github.com/poiesic/medvec/ai/mock"
	"github.com/poiesic/medvec/core"
	"github.com/poiesic/medvec/storage/sqlite"
	"github.com/poiesic/medvec/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedQueries maps query text to a hand-picked embedding.
var fixedQueries = map[string][]float32{
	"east":      {1, 0},
	"north":     {0, 1},
	"northeast": {3, 3},
	"volume":    {0, 0, 1},
}

func setupSearcher(t *testing.T, opts ...Option) (*Searcher, *vectorstore.Store, *mock.MockEmbedder) {
	t.Helper()

	embedder := mock.NewMockEmbedderWithDimension(2)
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		if v, ok := fixedQueries[text]; ok {
			return v, nil
		}
		return mock.GenerateDeterministicVector(text, 2), nil
	}
	gen, err := ai.NewGenerator(embedder, ai.WithRetry(1, time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(gen.Release)

	store, err := vectorstore.New()
	require.NoError(t, err)

	searcher, err := NewSearcher(store, gen, opts...)
	require.NoError(t, err)
	return searcher, store, embedder
}

func ids(results []*core.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestNewSearcher(t *testing.T) {
	store, err := vectorstore.New()
	require.NoError(t, err)
	gen, err := ai.NewGenerator(mock.NewMockEmbedder())
	require.NoError(t, err)
	defer gen.Release()

	t.Run("valid configuration", func(t *testing.T) {
		searcher, err := NewSearcher(store, gen)
		require.NoError(t, err)
		assert.NotNil(t, searcher)
	})

	t.Run("with nil logger falls back to default", func(t *testing.T) {
		searcher, err := NewSearcher(store, gen, WithLogger(nil))
		require.NoError(t, err)
		assert.NotNil(t, searcher)
	})

	t.Run("with custom logger", func(t *testing.T) {
		searcher, err := NewSearcher(store, gen, WithLogger(slog.Default()))
		require.NoError(t, err)
		assert.NotNil(t, searcher)
	})

	t.Run("nil store", func(t *testing.T) {
		_, err := NewSearcher(nil, gen)
		assert.Equal(t, ErrStoreRequired, err)
	})

	t.Run("nil embedder", func(t *testing.T) {
		_, err := NewSearcher(store, nil)
		assert.Equal(t, ErrEmbedderRequired, err)
	})
}

func TestSearch_ValidationBeforeEmbedding(t *testing.T) {
	searcher, store, embedder := setupSearcher(t)
	require.NoError(t, store.Write([]string{"a"}, [][]float32{{1, 0}}))
	ctx := context.Background()

	tests := []struct {
		name  string
		query string
		topK  int
	}{
		{"empty query", "", 5},
		{"whitespace query", " \t\n", 5},
		{"zero top_k", "east", 0},
		{"negative top_k", "east", -3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := searcher.Search(ctx, tt.query, tt.topK)
			assert.ErrorIs(t, err, core.ErrQueryValidation)
			assert.Zero(t, embedder.CallCount())
		})
	}
}

func TestSearch_EmptyStore(t *testing.T) {
	searcher, _, embedder := setupSearcher(t)

	results, err := searcher.Search(context.Background(), "east", 10)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Zero(t, embedder.CallCount())
}

func TestSearch_RanksByCosine(t *testing.T) {
	searcher, store, _ := setupSearcher(t)
	require.NoError(t, store.Write(
		[]string{"deg90", "deg60", "deg0"},
		[][]float32{{0, 5}, {1, 1.7320508}, {2, 0}},
	))

	results, err := searcher.Search(context.Background(), "east", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"deg0", "deg60", "deg90"}, ids(results))
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.InDelta(t, 0.5, results[1].Score, 1e-6)
	assert.InDelta(t, 0.0, results[2].Score, 1e-6)
}

func TestSearch_QueryIsNormalized(t *testing.T) {
	searcher, store, _ := setupSearcher(t)
	require.NoError(t, store.Write([]string{"ne"}, [][]float32{{1, 1}}))

	results, err := searcher.Search(context.Background(), "northeast", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestSearch_TopKLargerThanStore(t *testing.T) {
	searcher, store, _ := setupSearcher(t)
	require.NoError(t, store.Write([]string{"a", "b"}, [][]float32{{1, 0}, {0, 1}}))

	results, err := searcher.Search(context.Background(), "east", 100)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearch_Idempotent(t *testing.T) {
	searcher, store, _ := setupSearcher(t)
	vectors := make([][]float32, 20)
	names := make([]string, 20)
	for i := range vectors {
		names[i] = fmt.Sprintf("pmid-%d", i)
		vectors[i] = mock.GenerateDeterministicVector(names[i], 2)
	}
	require.NoError(t, store.Write(names, vectors))

	first, err := searcher.Search(context.Background(), "north", 5)
	require.NoError(t, err)
	second, err := searcher.Search(context.Background(), "north", 5)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSearch_TiesKeepStoreOrder(t *testing.T) {
	searcher, store, _ := setupSearcher(t)
	require.NoError(t, store.Write(
		[]string{"z", "y", "x"},
		[][]float32{{1, 0}, {1, 0}, {1, 0}},
	))

	results, err := searcher.Search(context.Background(), "east", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "y", "x"}, ids(results))
}

func TestSearch_DimensionMismatch(t *testing.T) {
	searcher, store, _ := setupSearcher(t)
	require.NoError(t, store.Write([]string{"a"}, [][]float32{{1, 0}}))

	_, err := searcher.Search(context.Background(), "volume", 1)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestIndexLifecycle(t *testing.T) {
	searcher, store, _ := setupSearcher(t)
	ctx := context.Background()

	assert.Equal(t, IndexAbsent, searcher.IndexState())

	require.NoError(t, store.Write([]string{"a"}, [][]float32{{1, 0}}))
	results, err := searcher.Search(ctx, "east", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(results))
	assert.Equal(t, IndexBuilt, searcher.IndexState())

	require.NoError(t, store.Write([]string{"b", "c"}, [][]float32{{0, 1}, {1, 0.1}}))
	assert.Equal(t, IndexStale, searcher.IndexState())

	results, err = searcher.Search(ctx, "east", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(results))
	assert.Equal(t, IndexBuilt, searcher.IndexState())

	require.NoError(t, store.Upsert([]string{"d"}, [][]float32{{1, 0}}))
	assert.Equal(t, IndexStale, searcher.IndexState())
	require.NoError(t, searcher.Rebuild())
	assert.Equal(t, IndexBuilt, searcher.IndexState())

	assert.Equal(t, "stale", IndexStale.String())
}

func TestSearch_AttachesReferences(t *testing.T) {
	ctx := context.Background()
	src, err := sqlite.OpenMemorySource()
	require.NoError(t, err)
	defer src.Close()
	require.NoError(t, src.InsertArticles(ctx,
		&core.ArticleRecord{PMID: "1", PMCID: "PMC11", Abstract: "x"},
		&core.ArticleRecord{PMID: "2", Abstract: "y"},
	))

	searcher, store, _ := setupSearcher(t, WithReferences(src))
	require.NoError(t, store.Write([]string{"1", "2", "3"}, [][]float32{{1, 0}, {0.9, 0.1}, {0, 1}}))

	results, err := searcher.Search(ctx, "east", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "PMC11", results[0].Reference)
	assert.Empty(t, results[1].Reference)
	assert.Empty(t, results[2].Reference)
}

type recordingMonitor struct {
	noopMonitor
	started  string
	rebuilds int
	matches  int
	finished int
}

func (m *recordingMonitor) Start(query string, _ int)             { m.started = query }
func (m *recordingMonitor) IndexRebuilt(_ int, _ uint64)          { m.rebuilds++ }
func (m *recordingMonitor) AfterIndexSearch(matches []core.Match) { m.matches = len(matches) }
func (m *recordingMonitor) Finish(results []*core.SearchResult)   { m.finished = len(results) }

func TestSearchWithMonitor(t *testing.T) {
	searcher, store, _ := setupSearcher(t)
	require.NoError(t, store.Write([]string{"a", "b"}, [][]float32{{1, 0}, {0, 1}}))
	ctx := context.Background()

	monitor := &recordingMonitor{}
	_, err := searcher.SearchWithMonitor(ctx, "east", 2, monitor)
	require.NoError(t, err)
	_, err = searcher.SearchWithMonitor(ctx, "east", 2, monitor)
	require.NoError(t, err)

	assert.Equal(t, "east", monitor.started)
	assert.Equal(t, 1, monitor.rebuilds)
	assert.Equal(t, 2, monitor.matches)
	assert.Equal(t, 2, monitor.finished)
}

func TestSearch_ConcurrentWithWrites(t *testing.T) {
	searcher, store, _ := setupSearcher(t)
	require.NoError(t, store.Write([]string{"a0", "b0"}, [][]float32{{1, 0}, {0, 1}}))
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 50; i++ {
			_ = store.Write(
				[]string{fmt.Sprintf("a%d", i), fmt.Sprintf("b%d", i)},
				[][]float32{{1, 0}, {0, 1}},
			)
		}
	}()

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				results, err := searcher.Search(ctx, "east", 1)
				if !assert.NoError(t, err) || !assert.Len(t, results, 1) {
					return
				}
				// The best match for "east" is always an "a" row of the same generation.
				assert.Equal(t, byte('a'), results[0].ID[0])
			}
		}()
	}
	wg.Wait()
}
