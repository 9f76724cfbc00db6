package generate

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/medvec/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordIteratorPaging(t *testing.T) {
	src := setupSource(t, articles(7)...)

	tests := []struct {
		name      string
		pageSize  int
		limit     int
		wantPages []int
	}{
		{"even pages", 7, 0, []int{7}},
		{"short last page", 3, 0, []int{3, 3, 1}},
		{"limit inside page", 5, 4, []int{4}},
		{"limit across pages", 3, 5, []int{3, 2}},
		{"limit above corpus", 10, 50, []int{7}},
		{"default page size", 0, 0, []int{7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := NewRecordIterator(src, tt.pageSize, tt.limit)
			var pages []int
			var ids []string
			err := it.ForEach(context.Background(), func(records []*core.ArticleRecord) error {
				pages = append(pages, len(records))
				for _, r := range records {
					ids = append(ids, r.PMID)
				}
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantPages, pages)

			total, err := it.Total(context.Background())
			require.NoError(t, err)
			assert.Equal(t, total, len(ids))
			if len(ids) > 0 {
				assert.Equal(t, "1000", ids[0])
			}
		})
	}
}

func TestRecordIteratorStopsOnError(t *testing.T) {
	src := setupSource(t, articles(6)...)
	boom := errors.New("boom")

	calls := 0
	err := NewRecordIterator(src, 2, 0).ForEach(context.Background(), func([]*core.ArticleRecord) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRecordIteratorCancelled(t *testing.T) {
	src := setupSource(t, articles(3)...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewRecordIterator(src, 1, 0).ForEach(ctx, func([]*core.ArticleRecord) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRecordIteratorEmptySource(t *testing.T) {
	src := setupSource(t)

	calls := 0
	err := NewRecordIterator(src, 10, 0).ForEach(context.Background(), func([]*core.ArticleRecord) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, calls)
}
