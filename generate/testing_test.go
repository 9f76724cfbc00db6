package generate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/medvec/ai"
	"github.com/poiesic/medvec/ai/mock"
	"github.com/poiesic/medvec/core"
	"github.com/poiesic/medvec/storage/files"
	"github.com/poiesic/medvec/storage/sqlite"
	"github.com/poiesic/medvec/vectorstore"
	"github.com/stretchr/testify/require"
)

const testDim = 16

func setupSource(t *testing.T, records ...*core.ArticleRecord) *sqlite.MemorySource {
	t.Helper()
	src, err := sqlite.OpenMemorySource()
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })
	require.NoError(t, src.InsertArticles(context.Background(), records...))
	return src
}

func articles(n int) []*core.ArticleRecord {
	records := make([]*core.ArticleRecord, n)
	for i := range records {
		records[i] = &core.ArticleRecord{
			PMID:         fmt.Sprintf("%d", 1000+i),
			ArticleTitle: fmt.Sprintf("Trial %d", i),
			Abstract:     fmt.Sprintf("Outcomes of cohort %d after twelve weeks.", i),
			MeshTerms:    []string{"Humans"},
		}
	}
	return records
}

func setupGenerator(t *testing.T, embedder *mock.MockEmbedder) *ai.Generator {
	t.Helper()
	gen, err := ai.NewGenerator(embedder, ai.WithBatchSize(4), ai.WithRetry(1, time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(gen.Release)
	return gen
}

func setupStore(t *testing.T) (*vectorstore.Store, string) {
	t.Helper()
	dir := t.TempDir()
	p, err := files.NewPersister(dir+"/vectors.bin", dir+"/ids.bin")
	require.NoError(t, err)
	store, err := vectorstore.New(vectorstore.WithPersister(p))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, dir
}

func reopenStore(t *testing.T, dir string) *vectorstore.Store {
	t.Helper()
	p, err := files.NewPersister(dir+"/vectors.bin", dir+"/ids.bin")
	require.NoError(t, err)
	store, err := vectorstore.New(vectorstore.WithPersister(p))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Load(context.Background()))
	return store
}
