package command

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sandevgo/localrag/internal/config"
	"github.com/sandevgo/localrag/internal/core"
	"github.com/sandevgo/localrag/internal/providers/rag"
	"github.com/sandevgo/localrag/internal/service/indexer"
	"github.com/sandevgo/localrag/internal/service/loader"
	"github.com/sandevgo/localrag/internal/service/memory"
	"github.com/sandevgo/localrag/internal/service/retrieval"
	"github.com/sandevgo/localrag/internal/storage/jsonfile"
	"github.com/sandevgo/localrag/pkg/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockState struct {
	provider string
	model    string
	models   []core.Model
	setErr   error
}

func (m *mockState) CurrentModel() (string, string) { return m.provider, m.model }

func (m *mockState) ChangeModel(ctx context.Context, model string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.model = model
	return nil
}

func (m *mockState) ListModels(ctx context.Context) ([]core.Model, error) {
	return m.models, nil
}

type fixture struct {
	router *Router
	store  *memory.Store
	state  *mockState
	dir    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	emb := rag.NewHashEmbedder(32)

	store, err := memory.Open(ctx, memory.Config{Collection: "memory", FallbackPath: filepath.Join(dir, "memory.json")}, emb)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tk := tokens.NewHeuristic()
	chunker := rag.NewChunker(rag.DefaultChunkerConfig(), tk)
	ix := indexer.New(store, chunker, emb, jsonfile.NewRecordsRepo(filepath.Join(dir, "memory.index.json")))
	cfg := &config.RetrievalConfig{MaxRelevantChunks: 3, MaxHistoryTokens: 2000, IncludeRecentTurns: 4, ConversationResults: 2}

	state := &mockState{provider: "ollama", model: "llama3", models: []core.Model{{ID: "llama3"}, {ID: "mistral"}}}
	router := New(NewCommands(Deps{
		Store:     store,
		Index:     ix,
		Loader:    loader.New(),
		Assembler: retrieval.NewAssembler(store, cfg, tk, "llama3"),
		State:     state,
	}))
	return &fixture{router: router, store: store, state: state, dir: dir}
}

func (f *fixture) run(t *testing.T, input string) string {
	t.Helper()
	out, handled := f.router.Execute(context.Background(), "test", input)
	require.True(t, handled, input)
	return out
}

func TestRouterPassesThroughChat(t *testing.T) {
	f := newFixture(t)

	_, handled := f.router.Execute(context.Background(), "test", "hello there")
	assert.False(t, handled)

	out := f.run(t, "/nope")
	assert.Contains(t, out, "Unknown command: /nope")

	out = f.run(t, "/help")
	for _, name := range []string{"/search", "/recent", "/stats", "/docs", "/index", "/forget", "/clear", "/model", "/context", "/summary"} {
		assert.Contains(t, out, name)
	}

	names := make([]string, 0)
	for _, cmd := range f.router.ListCommands() {
		names = append(names, cmd.Name())
	}
	assert.IsIncreasing(t, names)
}

func TestMemoryCommands(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assert.Contains(t, f.run(t, "/recent"), "No conversation yet")

	_, _, err := f.store.AddConversationPair(ctx, "where do penguins live", "mostly in the southern hemisphere")
	require.NoError(t, err)

	out := f.run(t, "/recent 5")
	assert.Contains(t, out, "user: where do penguins live")
	assert.Contains(t, out, "assistant: mostly in the southern hemisphere")

	out = f.run(t, "/search penguins")
	assert.Contains(t, out, "penguins")

	assert.Contains(t, f.run(t, "/search"), "missing query")
	assert.Contains(t, f.run(t, "/recent zero"), "invalid count")

	out = f.run(t, "/stats")
	assert.Contains(t, out, "`fallback`")
	assert.Contains(t, out, "**Total items**  ›  `2`")

	out = f.run(t, "/context penguins")
	assert.Contains(t, out, "Retrieved Context")
	assert.Contains(t, out, "User [")

	out = f.run(t, "/summary")
	assert.Contains(t, out, "Conversation History Summary (from 2 total messages):")

	assert.Contains(t, f.run(t, "/clear"), "/clear confirm")
	st, err := f.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalItems)

	assert.Contains(t, f.run(t, "/clear confirm"), "Memory cleared")
	st, err = f.store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.TotalItems)

	assert.Contains(t, f.run(t, "/context anything"), "No context")
}

func TestDocumentCommands(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.dir, "fjords.md")
	require.NoError(t, os.WriteFile(path, []byte("# Fjords\n\nFjords are long narrow inlets carved by glaciers."), 0o644))

	assert.Contains(t, f.run(t, "/docs"), "No documents indexed")
	assert.Contains(t, f.run(t, "/index "+filepath.Join(f.dir, "missing.txt")), "Could not load")
	assert.Contains(t, f.run(t, "/index "+path), "Indexed fjords.md")

	out := f.run(t, "/docs")
	assert.Contains(t, out, "Documents (1)")
	assert.Contains(t, out, path)
	assert.Contains(t, out, "1 chunks")

	docID := strings.Trim(strings.Fields(strings.Split(out, "› ")[1])[0], "`")
	assert.Contains(t, f.run(t, "/search glaciers"), "doc fjords.md")

	assert.Contains(t, f.run(t, "/forget "+docID), "removed")
	assert.Contains(t, f.run(t, "/forget "+docID), "is not indexed")
	assert.Contains(t, f.run(t, "/forget"), "usage: /forget <doc_id>")
}

func TestModelCommand(t *testing.T) {
	f := newFixture(t)

	out := f.run(t, "/model")
	assert.Contains(t, out, "**Provider**  ›  `ollama`")
	assert.Contains(t, out, "**Model**  ›  `llama3`")

	out = f.run(t, "/model list")
	assert.Contains(t, out, "`llama3` (current)")
	assert.Contains(t, out, "`mistral`")

	out = f.run(t, "/model mistral")
	assert.Contains(t, out, "Model changed to: `ollama/mistral`")
	assert.Equal(t, "mistral", f.state.model)

	f.state.setErr = errors.New("unknown model")
	out = f.run(t, "/model nope")
	assert.Contains(t, out, "/model failed")
	assert.Contains(t, out, "unknown model")
}
