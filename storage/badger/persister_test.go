package badger

import (
	"context"
	"fmt"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/medvec/core"
	"github.com/poiesic/medvec/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPersister(t *testing.T) *Persister {
	t.Helper()
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	p := newPersister(backend, true)
	t.Cleanup(func() { p.Close() })
	return p
}

func countEntries(t *testing.T, b *Backend) int {
	t.Helper()
	count := 0
	err := b.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(entryPrefix + ":")
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	require.NoError(t, err)
	return count
}

func TestPersisterRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := setupPersister(t)

	ids := make([]string, 2500)
	vectors := make([][]float32, len(ids))
	for i := range ids {
		ids[i] = fmt.Sprintf("%d", 30000000+i)
		vectors[i] = []float32{float32(i), -float32(i), 0.5}
	}
	require.NoError(t, p.Save(ctx, ids, vectors))

	gotIDs, gotVectors, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids, gotIDs)
	assert.Equal(t, vectors, gotVectors)
}

func TestPersisterMissing(t *testing.T) {
	ctx := context.Background()
	p := setupPersister(t)

	exists, err := p.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	_, _, err = p.Load(ctx)
	assert.ErrorIs(t, err, core.ErrPersistence)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPersisterReplacesGeneration(t *testing.T) {
	ctx := context.Background()
	p := setupPersister(t)

	require.NoError(t, p.Save(ctx, []string{"a", "b", "c"}, [][]float32{{1}, {2}, {3}}))
	require.NoError(t, p.Save(ctx, []string{"d"}, [][]float32{{4}}))

	ids, vectors, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, ids)
	assert.Equal(t, [][]float32{{4}}, vectors)
	assert.Equal(t, 1, countEntries(t, p.backend))
}

func TestPersisterRejectsBadShape(t *testing.T) {
	ctx := context.Background()
	p := setupPersister(t)
	require.NoError(t, p.Save(ctx, []string{"keep"}, [][]float32{{1, 0}}))

	err := p.Save(ctx, []string{"a"}, [][]float32{{1}, {2}})
	assert.ErrorIs(t, err, core.ErrLengthMismatch)

	ids, _, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, ids)
}

func TestPersisterCancelledSaveKeepsPrevious(t *testing.T) {
	p := setupPersister(t)
	require.NoError(t, p.Save(context.Background(), []string{"keep"}, [][]float32{{1, 0}}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Save(ctx, []string{"x", "y"}, [][]float32{{0, 1}, {1, 1}})
	assert.ErrorIs(t, err, context.Canceled)

	ids, _, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, ids)
	assert.Equal(t, 1, countEntries(t, p.backend))
}

func TestPersisterDetectsMissingRows(t *testing.T) {
	ctx := context.Background()
	p := setupPersister(t)
	require.NoError(t, p.Save(ctx, []string{"a", "b"}, [][]float32{{1}, {2}}))

	var generation string
	require.NoError(t, p.backend.WithTx(func(tx *badger.Txn) error {
		m, err := readManifest(tx)
		generation = m.Generation
		return err
	}, false))
	require.NoError(t, p.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeEntryKey(generation, 1)); err != nil {
			return err
		}
		return tx.Commit()
	}, true))

	_, _, err := p.Load(ctx)
	assert.ErrorIs(t, err, storage.ErrCorrupt)
}

func TestPersisterRejectsOversizedManifest(t *testing.T) {
	ctx := context.Background()
	p := setupPersister(t)
	require.NoError(t, p.Save(ctx, []string{"a"}, [][]float32{{1, 0}}))

	require.NoError(t, p.backend.WithTx(func(tx *badger.Txn) error {
		m, err := readManifest(tx)
		if err != nil {
			return err
		}
		m.Rows = 1 << 50
		if err := tx.Set([]byte(manifestKey), storage.Seal(storage.MarshalManifest(m))); err != nil {
			return err
		}
		return tx.Commit()
	}, true))

	_, _, err := p.Load(ctx)
	assert.ErrorIs(t, err, core.ErrPersistence)
	assert.ErrorIs(t, err, storage.ErrCorrupt)
}

func TestPruneOrphans(t *testing.T) {
	ctx := context.Background()
	p := setupPersister(t)
	require.NoError(t, p.Save(ctx, []string{"a"}, [][]float32{{1}}))
	require.NoError(t, p.writeEntries(ctx, "abandoned", []string{"x", "y"}, [][]float32{{1}, {2}}))
	assert.Equal(t, 3, countEntries(t, p.backend))

	require.NoError(t, p.pruneOrphans())
	assert.Equal(t, 1, countEntries(t, p.backend))

	ids, _, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}

func TestPersisterClosed(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	p := NewPersisterWithBackend(backend)
	require.NoError(t, backend.Close())

	err = p.Save(context.Background(), []string{"a"}, [][]float32{{1}})
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	require.NoError(t, p.Close())
}

func TestNewPersisterOnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	p, err := NewPersister(dir)
	require.NoError(t, err)
	require.NoError(t, p.Save(ctx, []string{"a"}, [][]float32{{0.6, 0.8}}))
	require.NoError(t, p.Close())

	p, err = NewPersister(dir)
	require.NoError(t, err)
	defer p.Close()

	ids, vectors, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
	assert.Equal(t, [][]float32{{0.6, 0.8}}, vectors)
}
