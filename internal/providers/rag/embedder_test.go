package rag

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/sandevgo/localrag/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEmbedder is a test double for core.Embedder
type mockEmbedder struct {
	embedFunc func(ctx context.Context, texts []string) ([][]float32, error)
	calls     [][]string
}

func (m *mockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls = append(m.calls, append([]string(nil), texts...))
	if m.embedFunc != nil {
		return m.embedFunc(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestHashEmbedder(t *testing.T) {
	h := NewHashEmbedder(64)
	vecs, err := h.Embed(context.Background(), []string{
		"The cat sat on the mat",
		"the CAT sat on the mat!",
		"Quarterly revenue grew by nine percent",
		"",
	})
	require.NoError(t, err)
	require.Len(t, vecs, 4)

	for _, v := range vecs {
		assert.Len(t, v, 64)
		assert.InDelta(t, 1.0, norm(v), 1e-5)
	}
	assert.Equal(t, vecs[0], vecs[1], "case and punctuation do not matter")
	assert.Greater(t, dot(vecs[0], vecs[1]), dot(vecs[0], vecs[2]))

	again, err := h.Embed(context.Background(), []string{"The cat sat on the mat"})
	require.NoError(t, err)
	assert.Equal(t, vecs[0], again[0], "embeddings are deterministic")
}

func TestFallbackEmbedder(t *testing.T) {
	tests := []struct {
		name         string
		embedFunc    func(ctx context.Context, texts []string) ([][]float32, error)
		wantDegraded bool
		wantErr      error
	}{
		{
			name:         "primary works",
			wantDegraded: false,
		},
		{
			name: "primary fails",
			embedFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
				return nil, errors.New("connection refused")
			},
			wantDegraded: true,
		},
		{
			name: "primary returns wrong count",
			embedFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
				return [][]float32{{1}}, nil
			},
			wantDegraded: true,
		},
		{
			name: "context cancellation propagates",
			embedFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
				return nil, context.Canceled
			},
			wantErr: context.Canceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockEmbedder{embedFunc: tt.embedFunc}
			f := NewFallbackEmbedder(mock, 16)

			vecs, err := f.Embed(context.Background(), []string{"one", "three"})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.False(t, f.Degraded())
				return
			}
			require.NoError(t, err)
			require.Len(t, vecs, 2)
			assert.Equal(t, tt.wantDegraded, f.Degraded())

			if tt.wantDegraded {
				assert.Len(t, vecs[0], 16)
				// stays degraded without calling the primary again
				_, err := f.Embed(context.Background(), []string{"again"})
				require.NoError(t, err)
				assert.Len(t, mock.calls, 1)
			}
		})
	}
}

func TestFallbackEmbedderWithoutPrimary(t *testing.T) {
	f := NewFallbackEmbedder(nil, 8)
	assert.True(t, f.Degraded())

	vecs, err := f.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Len(t, vecs[0], 8)
}

func TestBatchEmbedder(t *testing.T) {
	mock := &mockEmbedder{}
	b := NewBatchEmbedder(mock, 2)

	vecs, err := b.Embed(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	assert.Equal(t, float32(4), vecs[3][0])
	assert.Equal(t, [][]string{{"a", "bb"}, {"ccc", "dddd"}, {"eeeee"}}, mock.calls)
}

func TestCachedEmbedder(t *testing.T) {
	mock := &mockEmbedder{}
	c, err := NewCachedEmbedder(mock, "nomic-embed-text", 100)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	first, err := c.Embed(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)

	second, err := c.Embed(ctx, []string{"beta", "gamma", "alpha"})
	require.NoError(t, err)

	assert.Equal(t, first[0], second[2])
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, [][]string{{"alpha", "beta"}, {"gamma"}}, mock.calls)

	// callers may mutate results without corrupting the cache
	second[0][0] = 999
	third, err := c.Embed(ctx, []string{"beta"})
	require.NoError(t, err)
	assert.Equal(t, first[1], third[0])
	assert.Len(t, mock.calls, 2)
}

func TestNewEmbedder(t *testing.T) {
	cfg := &config.RAGConfig{EmbeddingDimension: 32, EmbeddingBatchSize: 4, EmbeddingCacheSize: 0}

	e, closeFn, err := NewEmbedder(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NoError(t, closeFn())

	vecs, err := e.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	assert.Len(t, vecs[0], 32)
}
