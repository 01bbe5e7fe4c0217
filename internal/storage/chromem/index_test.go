package chromem

import (
	"context"
	"testing"

	"github.com/sandevgo/localrag/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := Open(dir, "memory")
	require.NoError(t, err)

	require.NoError(t, idx.Put(ctx,
		core.MemoryItem{ID: "a", Text: "cats", Embedding: []float32{1, 0, 0}, Metadata: core.Metadata{"role": "user", "timestamp": 10.5}},
		core.MemoryItem{ID: "b", Text: "dogs", Embedding: []float32{0, 1, 0}, Metadata: core.Metadata{"doc_id": "d1", "chunk_index": 0}},
		core.MemoryItem{ID: "c", Text: "birds", Embedding: []float32{0, 0, 1}, Metadata: core.Metadata{"doc_id": "d1", "chunk_index": 1}},
	))

	dim, err := idx.Dimension(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, dim)

	matches, err := idx.Query(ctx, []float32{1, 0.1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "a", matches[0].Item.ID)
	assert.Less(t, matches[0].Distance, matches[1].Distance)
	assert.Equal(t, 10.5, matches[0].Item.Metadata.Timestamp())

	matches, err = idx.Query(ctx, []float32{1, 0, 0}, 10, core.Metadata{"chunk_index": 1.0})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "c", matches[0].Item.ID)

	// reopen from disk
	idx, err = Open(dir, "memory")
	require.NoError(t, err)

	got, ok, err := idx.Get(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "dogs", got.Text)
	assert.Equal(t, "d1", got.Metadata.String("doc_id"))

	items, err := idx.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "a", items[0].ID)
}

func TestIndexDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx, err := Open(t.TempDir(), "memory")
	require.NoError(t, err)

	require.NoError(t, idx.Put(ctx, core.MemoryItem{ID: "a", Text: "x", Embedding: []float32{1, 0}, Metadata: core.Metadata{}}))

	err = idx.Put(ctx, core.MemoryItem{ID: "b", Text: "y", Embedding: []float32{1, 0, 0}, Metadata: core.Metadata{}})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	_, err = idx.Query(ctx, []float32{1, 0, 0}, 1, nil)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestIndexDeleteAndReset(t *testing.T) {
	ctx := context.Background()
	idx, err := Open(t.TempDir(), "memory")
	require.NoError(t, err)

	require.NoError(t, idx.Put(ctx,
		core.MemoryItem{ID: "a", Text: "x", Embedding: []float32{1, 0}, Metadata: core.Metadata{}},
		core.MemoryItem{ID: "b", Text: "y", Embedding: []float32{0, 1}, Metadata: core.Metadata{}},
	))

	n, err := idx.Delete(ctx, "a", "missing")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok, err := idx.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, idx.Reset(ctx))
	items, err := idx.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	dim, err := idx.Dimension(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, dim)

	require.NoError(t, idx.Put(ctx, core.MemoryItem{ID: "c", Text: "z", Embedding: []float32{1, 0, 0, 0}, Metadata: core.Metadata{}}))
	dim, err = idx.Dimension(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, dim)
}
