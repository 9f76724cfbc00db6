package mock

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicVectors(t *testing.T) {
	a := GenerateDeterministicVector("myocardial infarction", 16)
	b := GenerateDeterministicVector("myocardial infarction", 16)
	c := GenerateDeterministicVector("asthma", 16)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestMockEmbedderRecordsCalls(t *testing.T) {
	ctx := context.Background()
	m := NewMockEmbedderWithDimension(8)

	vectors, err := m.EmbedTexts(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, vectors, 3)
	for _, v := range vectors {
		assert.Len(t, v, 8)
	}

	_, err = m.EmbedText(ctx, "query")
	require.NoError(t, err)

	assert.Equal(t, 2, m.CallCount())
	assert.Equal(t, []int{3}, m.BatchSizes())

	m.Reset()
	assert.Zero(t, m.CallCount())
	assert.Empty(t, m.BatchSizes())
}

func TestMockEmbedderConcurrentUse(t *testing.T) {
	ctx := context.Background()
	m := NewMockEmbedder()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.EmbedTexts(ctx, []string{"x"})
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, m.CallCount())
}
