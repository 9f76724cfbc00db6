package index

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/poiesic/medvec/core"
	"github.com/poiesic/medvec/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildIndex(t *testing.T, vectors [][]float32) *Flat {
	t.Helper()
	store, err := vectorstore.New()
	require.NoError(t, err)
	ids := make([]string, len(vectors))
	for i := range ids {
		ids[i] = string(rune('a' + i))
	}
	require.NoError(t, store.Write(ids, vectors))
	f, err := Build(store.Snapshot())
	require.NoError(t, err)
	return f
}

func positions(matches []core.Match) []int {
	out := make([]int, len(matches))
	for i, m := range matches {
		out[i] = m.Position
	}
	return out
}

func TestSearchAngles(t *testing.T) {
	// 0, 60 and 90 degrees from the query.
	f := buildIndex(t, [][]float32{{0, 1}, {0.5, 0.8660254}, {1, 0}})

	matches, err := f.Search([]float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 0}, positions(matches))
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.InDelta(t, 0.5, matches[1].Score, 1e-6)
	assert.InDelta(t, 0.0, matches[2].Score, 1e-6)
}

func TestSearchTopK(t *testing.T) {
	f := buildIndex(t, [][]float32{{1, 0}, {0, 1}, {1, 1}})

	tests := []struct {
		name string
		k    int
		want int
	}{
		{"fewer than stored", 2, 2},
		{"exactly stored", 3, 3},
		{"more than stored", 50, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches, err := f.Search([]float32{1, 0}, tt.k)
			require.NoError(t, err)
			assert.Len(t, matches, tt.want)
		})
	}

	_, err := f.Search([]float32{1, 0}, 0)
	assert.ErrorIs(t, err, core.ErrQueryValidation)
}

func TestSearchZeroRowsRankLast(t *testing.T) {
	f := buildIndex(t, [][]float32{{0, 0}, {-1, 0}, {1, 0}})

	matches, err := f.Search([]float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 0}, positions(matches))
	assert.Equal(t, float32(-1), matches[1].Score)
	assert.Zero(t, matches[2].Score)

	matches, err = f.Search([]float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, positions(matches))
}

func TestSearchTiesBreakByPosition(t *testing.T) {
	f := buildIndex(t, [][]float32{{0, 1}, {1, 0}, {0, 1}, {1, 0}, {1, 0}})

	matches, err := f.Search([]float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 4}, positions(matches))

	// A zero query scores everything equally.
	matches, err = f.Search([]float32{0, 0}, 5)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, positions(matches))
}

func TestSearchDimensionMismatch(t *testing.T) {
	f := buildIndex(t, [][]float32{{1, 0, 0}})

	_, err := f.Search([]float32{1, 0}, 1)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestSearchEmptyIndex(t *testing.T) {
	f := buildIndex(t, nil)

	matches, err := f.Search([]float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestBuildRecordsVersion(t *testing.T) {
	store, err := vectorstore.New()
	require.NoError(t, err)
	require.NoError(t, store.Write([]string{"a"}, [][]float32{{1}}))

	f, err := Build(store.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, store.Version(), f.Version())
	assert.Equal(t, 1, f.Len())
	assert.Equal(t, 1, f.Dim())
}

func TestSearchMatchesFullSort(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const rows, dim = 500, 16

	vectors := make([][]float32, rows)
	for i := range vectors {
		vectors[i] = make([]float32, dim)
		for j := range vectors[i] {
			vectors[i][j] = rng.Float32()*2 - 1
		}
	}
	store, err := vectorstore.New()
	require.NoError(t, err)
	ids := make([]string, rows)
	for i := range ids {
		ids[i] = string(rune(0x4e00 + i))
	}
	require.NoError(t, store.Write(ids, vectors))
	snap := store.Snapshot()
	f, err := Build(snap)
	require.NoError(t, err)

	query := core.Normalize(vectors[42])
	matches, err := f.Search(query, 10)
	require.NoError(t, err)

	type scored struct {
		row   int
		score float32
	}
	all := make([]scored, rows)
	for i := range all {
		all[i] = scored{i, core.Dot(query, snap.Vector(i))}
	}
	sort.SliceStable(all, func(a, b int) bool { return all[a].score > all[b].score })

	for i, m := range matches {
		assert.Equal(t, all[i].row, m.Position)
		assert.Equal(t, all[i].score, m.Score)
	}
	assert.Equal(t, 42, matches[0].Position)
}
