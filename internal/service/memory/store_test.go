package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sandevgo/localrag/internal/core"
	"github.com/sandevgo/localrag/internal/providers/rag"
	"github.com/sandevgo/localrag/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps the hash embedder and records every call
type countingEmbedder struct {
	mu    sync.Mutex
	inner *rag.HashEmbedder
	calls [][]string
}

func newCountingEmbedder(dim int) *countingEmbedder {
	return &countingEmbedder{inner: rag.NewHashEmbedder(dim)}
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.calls = append(c.calls, append([]string(nil), texts...))
	c.mu.Unlock()
	return c.inner.Embed(ctx, texts)
}

// fakeIndex is an in-memory core.VectorIndex that can be told to fail
type fakeIndex struct {
	items   map[string]core.MemoryItem
	failOn  map[string]error
	queries int
	pingErr error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{items: map[string]core.MemoryItem{}, failOn: map[string]error{}}
}

func (f *fakeIndex) Name() string                   { return "fake" }
func (f *fakeIndex) Ping(ctx context.Context) error { return f.pingErr }
func (f *fakeIndex) Close() error                   { return nil }

func (f *fakeIndex) Dimension(ctx context.Context) (int, error) {
	for _, it := range f.items {
		return len(it.Embedding), nil
	}
	return 0, nil
}

func (f *fakeIndex) Put(ctx context.Context, items ...core.MemoryItem) error {
	if err := f.failOn["put"]; err != nil {
		return err
	}
	dim, _ := f.Dimension(ctx)
	for _, it := range items {
		if dim > 0 && len(it.Embedding) != dim {
			return fmt.Errorf("%w: fake", core.ErrDimensionMismatch)
		}
		f.items[it.ID] = it
	}
	return nil
}

func (f *fakeIndex) Query(ctx context.Context, emb []float32, limit int, filter core.Metadata) ([]core.Match, error) {
	f.queries++
	if err := f.failOn["query"]; err != nil {
		return nil, err
	}
	var out []core.Match
	for _, it := range f.items {
		if it.Metadata.Matches(filter) {
			out = append(out, core.Match{Item: it, Distance: 1 - cosine(emb, it.Embedding)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeIndex) Get(ctx context.Context, id string) (core.MemoryItem, bool, error) {
	it, ok := f.items[id]
	return it, ok, nil
}

func (f *fakeIndex) Delete(ctx context.Context, ids ...string) (int, error) {
	n := 0
	for _, id := range ids {
		if _, ok := f.items[id]; ok {
			delete(f.items, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeIndex) List(ctx context.Context) ([]core.MemoryItem, error) {
	if err := f.failOn["list"]; err != nil {
		return nil, err
	}
	out := make([]core.MemoryItem, 0, len(f.items))
	for _, it := range f.items {
		out = append(out, it)
	}
	return out, nil
}

func (f *fakeIndex) Reset(ctx context.Context) error {
	f.items = map[string]core.MemoryItem{}
	return nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// tick makes the store clock advance one second per reading.
func tick(s *Store) {
	var mu sync.Mutex
	t := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

type backendCase struct {
	name    string
	backend func(t *testing.T) core.VectorIndex
	mode    string
}

func backends() []backendCase {
	return []backendCase{
		{"sqlite", func(t *testing.T) core.VectorIndex {
			db, err := sqlite.NewDB(context.Background(), filepath.Join(t.TempDir(), "mem.db"))
			require.NoError(t, err)
			t.Cleanup(func() { db.Close() })
			return sqlite.NewItemsRepo(db, "memory")
		}, "vector:sqlite"},
		{"fake", func(t *testing.T) core.VectorIndex { return newFakeIndex() }, "vector:fake"},
		{"fallback", func(t *testing.T) core.VectorIndex { return nil }, "fallback"},
	}
}

func openStore(t *testing.T, emb core.Embedder, backend core.VectorIndex) *Store {
	t.Helper()
	cfg := Config{Collection: "memory", FallbackPath: filepath.Join(t.TempDir(), "memory.json")}
	var s *Store
	var err error
	if backend == nil {
		s, err = Open(context.Background(), cfg, emb)
	} else {
		s, err = Open(context.Background(), cfg, emb, backend)
	}
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	tick(s)
	return s
}

func TestInsert(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			ctx := context.Background()
			emb := newCountingEmbedder(16)
			s := openStore(t, emb, bc.backend(t))
			assert.Equal(t, bc.mode, s.Mode())

			id, err := s.Insert(ctx, Input{Text: "remember the milk", Metadata: core.Metadata{"role": "user"}})
			require.NoError(t, err)
			assert.Len(t, id, 36)
			assert.Len(t, emb.calls, 1)

			item, ok, err := s.Get(ctx, id)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "remember the milk", item.Text)
			assert.Greater(t, item.Metadata.Timestamp(), 0.0)

			id, err = s.Insert(ctx, Input{ID: "fixed", Text: "given", Embedding: make([]float32, 16), Metadata: core.Metadata{"timestamp": 5.0}})
			require.NoError(t, err)
			assert.Equal(t, "fixed", id)
			assert.Len(t, emb.calls, 1, "a supplied embedding needs no embedder call")

			item, _, err = s.Get(ctx, "fixed")
			require.NoError(t, err)
			assert.Equal(t, 5.0, item.Metadata.Timestamp())

			id, err = s.Insert(ctx, Input{Text: "   "})
			require.NoError(t, err)
			assert.Empty(t, id)
		})
	}
}

func TestRecentReturnsLastPairInOrder(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			ctx := context.Background()
			s := openStore(t, newCountingEmbedder(16), bc.backend(t))

			for i := 1; i <= 3; i++ {
				_, _, err := s.AddConversationPair(ctx, fmt.Sprintf("question %d", i), fmt.Sprintf("answer %d", i))
				require.NoError(t, err)
			}
			_, err := s.Insert(ctx, Input{Text: "a document chunk", Metadata: core.Metadata{"type": core.TypeDocumentChunk}})
			require.NoError(t, err)

			recent, err := s.Recent(ctx, 2)
			require.NoError(t, err)
			require.Len(t, recent, 2)
			assert.Equal(t, "question 3", recent[0].Text)
			assert.Equal(t, "answer 3", recent[1].Text)

			all, err := s.Recent(ctx, 100)
			require.NoError(t, err)
			require.Len(t, all, 6)
			for i := 1; i < len(all); i++ {
				assert.Less(t, all[i-1].Metadata.Timestamp(), all[i].Metadata.Timestamp())
			}

			none, err := s.Recent(ctx, 0)
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestAddConversationPair(t *testing.T) {
	ctx := context.Background()
	emb := newCountingEmbedder(16)
	s := openStore(t, emb, newFakeIndex())

	uid, aid, err := s.AddConversationPair(ctx, "hello", "hi there")
	require.NoError(t, err)
	require.Len(t, emb.calls, 1, "both texts are embedded in one call")
	assert.Equal(t, []string{"hello", "hi there"}, emb.calls[0])

	u, _, err := s.Get(ctx, uid)
	require.NoError(t, err)
	a, _, err := s.Get(ctx, aid)
	require.NoError(t, err)

	assert.Equal(t, core.RoleUser, u.Metadata.Role())
	assert.Equal(t, core.RoleAssistant, a.Metadata.Role())
	assert.Greater(t, a.Metadata.Timestamp(), u.Metadata.Timestamp())
	assert.InDelta(t, 0.1, a.Metadata.Timestamp()-u.Metadata.Timestamp(), 1e-6)
}

func TestFallbackSearchRespectsFilterAndLimit(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, newCountingEmbedder(16), nil)
	require.Equal(t, "fallback", s.Mode())

	for i := 0; i < 5; i++ {
		_, _, err := s.AddConversationPair(ctx, fmt.Sprintf("user %d", i), fmt.Sprintf("assistant %d", i))
		require.NoError(t, err)
	}

	hits, err := s.Search(ctx, Query{Text: "x", Limit: 3, Filter: core.Metadata{"role": "user"}})
	require.NoError(t, err)
	require.Len(t, hits, 3)
	for i, h := range hits {
		assert.Equal(t, "user", h.Item.Metadata.Role())
		assert.False(t, h.HasDistance)
		_, ok := h.Relevance()
		assert.False(t, ok)
		if i > 0 {
			assert.Greater(t, hits[i-1].Item.Metadata.Timestamp(), h.Item.Metadata.Timestamp())
		}
	}
	assert.Equal(t, "user 4", hits[0].Item.Text)

	hits, err = s.Search(ctx, Query{Text: "x", Limit: 3, Filter: core.Metadata{"role": "nobody"}})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestBlankQueryMatchesNothing(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			ctx := context.Background()
			s := openStore(t, newCountingEmbedder(16), bc.backend(t))
			require.Equal(t, bc.mode, s.Mode())

			_, _, err := s.AddConversationPair(ctx, "hello", "hi there")
			require.NoError(t, err)

			for _, text := range []string{"", "  \n\t"} {
				hits, err := s.Search(ctx, Query{Text: text, Limit: 5})
				require.NoError(t, err)
				assert.Empty(t, hits)
			}
		})
	}
}

func TestSearchRanksByDistance(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, newCountingEmbedder(1024), newFakeIndex())

	for _, text := range []string{"cats purr and sleep", "stock markets fell sharply", "kittens and cats play"} {
		_, err := s.Insert(ctx, Input{Text: text, Metadata: core.Metadata{"role": "user"}})
		require.NoError(t, err)
	}

	hits, err := s.Search(ctx, Query{Text: "cats", Limit: 2})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.True(t, h.HasDistance)
		assert.Contains(t, h.Item.Text, "cats")
	}
	rel, ok := hits[0].Relevance()
	assert.True(t, ok)
	assert.Greater(t, rel, 0.0)

	hits, err = s.Search(ctx, Query{Text: "", Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestBackendFailureDemotesOnce(t *testing.T) {
	ctx := context.Background()
	idx := newFakeIndex()
	s := openStore(t, newCountingEmbedder(16), idx)

	_, _, err := s.AddConversationPair(ctx, "before failure", "kept")
	require.NoError(t, err)

	idx.failOn["query"] = errors.New("database disk image is malformed")
	hits, err := s.Search(ctx, Query{Text: "x", Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, "fallback", s.Mode())
	assert.Len(t, hits, 2, "items are migrated to the fallback list")
	assert.Equal(t, 1, idx.queries)

	// the broken backend is never consulted again
	_, err = s.Search(ctx, Query{Text: "x", Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, idx.queries)

	_, err = s.Insert(ctx, Input{Text: "after failure", Metadata: core.Metadata{"role": "user"}})
	require.NoError(t, err)
	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.TotalItems)
	assert.Equal(t, 2, st.UserMessages)
}

func TestDimensionMismatchPropagates(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			ctx := context.Background()
			s := openStore(t, newCountingEmbedder(16), bc.backend(t))

			_, err := s.Insert(ctx, Input{Text: "first"})
			require.NoError(t, err)

			_, err = s.Insert(ctx, Input{Text: "second", Embedding: []float32{1, 2, 3}})
			assert.ErrorIs(t, err, ErrDimensionMismatch)
			assert.Equal(t, bc.mode, s.Mode(), "integrity errors do not demote the store")
		})
	}
}

func TestContextCancellationPropagates(t *testing.T) {
	idx := newFakeIndex()
	s := openStore(t, newCountingEmbedder(16), idx)
	_, err := s.Insert(context.Background(), Input{Text: "x"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	idx.failOn["query"] = context.Canceled

	_, err = s.Search(ctx, Query{Embedding: make([]float32, 16), Limit: 1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "vector:fake", s.Mode())
}

func TestDeleteClearStats(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			ctx := context.Background()
			s := openStore(t, newCountingEmbedder(16), bc.backend(t))

			uid, _, err := s.AddConversationPair(ctx, "u", "a")
			require.NoError(t, err)
			_, err = s.Insert(ctx, Input{Text: "chunk", Metadata: core.Metadata{"type": core.TypeDocumentChunk}})
			require.NoError(t, err)

			st, err := s.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, st.TotalItems)
			assert.Equal(t, 1, st.UserMessages)
			assert.Equal(t, 1, st.AssistantMessages)
			assert.Equal(t, 1, st.DocumentChunks)
			assert.LessOrEqual(t, st.OldestTimestamp, st.NewestTimestamp)
			assert.Equal(t, bc.mode, st.Mode)

			removed, err := s.Delete(ctx, uid)
			require.NoError(t, err)
			assert.True(t, removed)
			removed, err = s.Delete(ctx, uid)
			require.NoError(t, err)
			assert.False(t, removed)

			require.NoError(t, s.Clear(ctx))
			st, err = s.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 0, st.TotalItems)
		})
	}
}

func TestFallbackSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Collection: "memory", FallbackPath: filepath.Join(t.TempDir(), "memory.json")}

	s, err := Open(ctx, cfg, newCountingEmbedder(16))
	require.NoError(t, err)
	_, _, err = s.AddConversationPair(ctx, "persist me", "ok")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, cfg, newCountingEmbedder(16))
	require.NoError(t, err)
	recent, err := s.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "persist me", recent[0].Text)

	// a later run with a working backend imports the items
	idx := newFakeIndex()
	s, err = Open(ctx, cfg, newCountingEmbedder(16), idx)
	require.NoError(t, err)
	assert.Len(t, idx.items, 2)
	assert.Equal(t, "vector:fake", s.Mode())
}

func TestProbe(t *testing.T) {
	ctx := context.Background()

	_, ok := Probe(ctx, nil).(Unavailable)
	assert.True(t, ok)

	broken := newFakeIndex()
	broken.pingErr = errors.New("no such function: vec_version")
	c, ok := Probe(ctx, broken).(Unavailable)
	require.True(t, ok)
	assert.Contains(t, c.Reason, "vec_version")

	a, ok := Probe(ctx, newFakeIndex()).(Active)
	require.True(t, ok)
	assert.NotNil(t, a.Index)
}

func TestOpenSkipsUnavailableBackends(t *testing.T) {
	broken := newFakeIndex()
	broken.pingErr = errors.New("down")
	working := newFakeIndex()

	cfg := Config{Collection: "memory", FallbackPath: filepath.Join(t.TempDir(), "memory.json")}
	s2, err := Open(context.Background(), cfg, newCountingEmbedder(8), broken, working)
	require.NoError(t, err)
	assert.Equal(t, "vector:fake", s2.Mode())

	_, err = s2.Insert(context.Background(), Input{Text: "x"})
	require.NoError(t, err)
	assert.Len(t, working.items, 1)
	assert.Empty(t, broken.items)
}
