package retrieval

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sandevgo/localrag/internal/config"
	"github.com/sandevgo/localrag/internal/core"
	"github.com/sandevgo/localrag/internal/service/memory"
	"github.com/sandevgo/localrag/pkg/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	location = time.UTC
}

type mockStore struct {
	recent    []memory.Item
	convHits  []memory.Hit
	docHits   []memory.Hit
	stats     memory.Stats
	queries   []memory.Query
	recentArg int
}

func (m *mockStore) Search(ctx context.Context, q memory.Query) ([]memory.Hit, error) {
	m.queries = append(m.queries, q)
	hits := m.convHits
	if q.Filter.String(core.MetaType) == core.TypeDocumentChunk {
		hits = m.docHits
	}
	if len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, nil
}

func (m *mockStore) Recent(ctx context.Context, n int) ([]memory.Item, error) {
	m.recentArg = n
	if len(m.recent) > n {
		return m.recent[len(m.recent)-n:], nil
	}
	return m.recent, nil
}

func (m *mockStore) Stats(ctx context.Context) (memory.Stats, error) {
	return m.stats, nil
}

const base = 1_780_000_000.0

func turn(id, role, text string, ts float64) memory.Item {
	return memory.Item{ID: id, Text: text, Metadata: core.Metadata{core.MetaRole: role, core.MetaTimestamp: ts}}
}

func chunk(doc, file string, i int, text string) memory.Item {
	return memory.Item{
		ID:   fmt.Sprintf("%s_chunk_%d", doc, i),
		Text: text,
		Metadata: core.Metadata{
			core.MetaType:     core.TypeDocumentChunk,
			core.MetaDocID:    doc,
			core.MetaFilename: file,
		},
	}
}

func newTestAssembler(store Store, mutate func(*config.RetrievalConfig)) *Assembler {
	cfg := &config.RetrievalConfig{
		MaxRelevantChunks:  5,
		MaxHistoryTokens:   2000,
		IncludeRecentTurns: 4,
	}
	if mutate != nil {
		mutate(cfg)
	}
	return NewAssembler(store, cfg, tokens.NewHeuristic(), "llama3")
}

func TestAssembleMergesAndOrders(t *testing.T) {
	store := &mockStore{
		recent: []memory.Item{
			turn("u3", core.RoleUser, "third question", base+30),
			turn("a3", core.RoleAssistant, "third answer", base+30.1),
		},
		convHits: []memory.Hit{
			{Item: chunk("doc", "notes.md", 0, "a chunk that must not leak"), Distance: 0.1, HasDistance: true},
			{Item: turn("a3", core.RoleAssistant, "third answer", base+30.1), Distance: 0.2, HasDistance: true},
			{Item: turn("u1", core.RoleUser, "first question", base+10), Distance: 0.3, HasDistance: true},
			{Item: turn("a2", core.RoleAssistant, "second answer", base+20.1), Distance: 0.4, HasDistance: true},
		},
		docHits: []memory.Hit{
			{Item: chunk("doc", "notes.md", 0, "document text"), Distance: 0.25, HasDistance: true},
		},
	}
	a := newTestAssembler(store, nil)

	c, err := a.Assemble(context.Background(), "question", 3, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, store.recentArg)

	ids := make([]string, len(c.Conversation))
	for i, item := range c.Conversation {
		ids[i] = item.ID
	}
	assert.Equal(t, []string{"u1", "a2", "u3", "a3"}, ids)
	require.Len(t, c.Documents, 1)

	require.Len(t, store.queries, 2)
	assert.Equal(t, 9, store.queries[0].Limit)
	assert.Empty(t, store.queries[0].Filter)
	assert.Equal(t, 2, store.queries[1].Limit)
	assert.Equal(t, core.TypeDocumentChunk, store.queries[1].Filter.String(core.MetaType))
}

func TestAssembleEmptyQuery(t *testing.T) {
	store := &mockStore{recent: []memory.Item{turn("u1", core.RoleUser, "hi", base)}}
	a := newTestAssembler(store, nil)

	c, err := a.Assemble(context.Background(), "  ", 3, 3)
	require.NoError(t, err)
	assert.Empty(t, store.queries)
	assert.Len(t, c.Conversation, 1)
	assert.Empty(t, c.Documents)

	empty, err := newTestAssembler(&mockStore{}, nil).Assemble(context.Background(), "", 3, 3)
	require.NoError(t, err)
	assert.True(t, empty.Empty())
}

func TestAssembleSimilarityThreshold(t *testing.T) {
	store := &mockStore{
		docHits: []memory.Hit{
			{Item: chunk("d", "a.txt", 0, "close"), Distance: 0.2, HasDistance: true},
			{Item: chunk("d", "a.txt", 1, "far"), Distance: 0.9, HasDistance: true},
			{Item: chunk("d", "a.txt", 2, "unranked")},
		},
	}
	a := newTestAssembler(store, func(cfg *config.RetrievalConfig) { cfg.SimilarityThreshold = 0.5 })

	c, err := a.Assemble(context.Background(), "q", 0, 3)
	require.NoError(t, err)
	require.Len(t, c.Documents, 2)
	assert.Equal(t, "close", c.Documents[0].Item.Text)
	assert.Equal(t, "unranked", c.Documents[1].Item.Text)
}

func TestFormatForPrompt(t *testing.T) {
	a := newTestAssembler(&mockStore{}, nil)
	c := Context{
		Conversation: []memory.Item{
			turn("u1", core.RoleUser, "How tall is Everest?", base),
			turn("a1", core.RoleAssistant, "About 8849 metres.", base+0.1),
			{ID: "x", Text: "note", Metadata: core.Metadata{core.MetaRole: "system"}},
		},
		Documents: []memory.Hit{
			{Item: chunk("doc-1", "peaks.txt", 0, "Everest is the highest mountain."), Distance: 0.125, HasDistance: true},
			{Item: chunk("doc-2", "", 0, "Unranked text.")},
		},
	}

	text, b := a.FormatForPrompt(context.Background(), c)
	ts := time.Unix(int64(base), 0).UTC().Format("2006-01-02 15:04:05")
	want := strings.Join([]string{
		"User [" + ts + "]: How tall is Everest?",
		"Assistant [" + ts + "]: About 8849 metres.",
		"System: note",
		"[Document: peaks.txt (ID: doc-1) - Relevance: 0.88]:\nEverest is the highest mountain.",
		"[Document: unknown document (ID: doc-2) - Relevance: unknown]:\nUnranked text.",
	}, "\n\n")
	assert.Equal(t, want, text)
	assert.False(t, b.Truncated)
	assert.Equal(t, 5, b.Included)
	assert.Equal(t, tokens.NewHeuristic().Count(want, "llama3"), b.Total)
}

func longConversation(n int) []memory.Item {
	items := make([]memory.Item, 0, n)
	for i := 0; i < n; i++ {
		role := core.RoleUser
		if i%2 == 1 {
			role = core.RoleAssistant
		}
		text := fmt.Sprintf("message %d %s", i, strings.Repeat("lorem ipsum dolor sit amet ", 10))
		items = append(items, turn(fmt.Sprintf("m%d", i), role, text, base+float64(i)))
	}
	return items
}

func TestFormatForPromptTruncatesOldest(t *testing.T) {
	a := newTestAssembler(&mockStore{}, func(cfg *config.RetrievalConfig) { cfg.MaxHistoryTokens = 200 })
	c := Context{Conversation: longConversation(20)}

	text, b := a.FormatForPrompt(context.Background(), c)
	assert.True(t, b.Truncated)
	assert.LessOrEqual(t, b.Total, 200)
	assert.LessOrEqual(t, tokens.NewHeuristic().Count(text, "llama3"), 200)
	assert.True(t, strings.HasSuffix(text, c.Conversation[19].Text), "the newest message is kept")
	assert.NotContains(t, text, "message 0 ")
}

func TestFormatAsMessages(t *testing.T) {
	a := newTestAssembler(&mockStore{}, nil)
	c := Context{
		Conversation: []memory.Item{
			turn("u1", core.RoleUser, "hi", base),
			turn("a1", core.RoleAssistant, "hello", base+0.1),
			{ID: "t1", Text: "tool output", Metadata: core.Metadata{core.MetaRole: "tool"}},
		},
		Documents: []memory.Hit{{Item: chunk("d", "a.txt", 0, "doc text"), Distance: 0.5, HasDistance: true}},
	}

	msgs, b := a.FormatAsMessages(context.Background(), c)
	require.Len(t, msgs, 4)
	assert.Equal(t, core.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "[Document: a.txt (ID: d) - Relevance: 0.50]:\ndoc text")
	assert.Equal(t, core.Message{Role: core.RoleUser, Content: "hi"}, msgs[1])
	assert.Equal(t, core.Message{Role: core.RoleAssistant, Content: "hello"}, msgs[2])
	assert.Equal(t, core.RoleUser, msgs[3].Role, "unknown roles become user")
	assert.Equal(t, 4, b.Included)
	assert.Zero(t, b.Dropped)
	assert.False(t, b.OverBudget)
}

func TestFormatAsMessagesBudget(t *testing.T) {
	tk := tokens.NewHeuristic()
	conv := longConversation(10)
	per := tk.Count(conv[0].Text, "llama3")
	docs := []memory.Hit{{Item: chunk("d", "a.txt", 0, strings.Repeat("word ", 40)), Distance: 0.1, HasDistance: true}}

	t.Run("drops oldest messages", func(t *testing.T) {
		a := newTestAssembler(&mockStore{}, func(cfg *config.RetrievalConfig) {
			cfg.MaxHistoryTokens = per*6 + 100
			cfg.IncludeRecentTurns = 2
		})
		msgs, b := a.FormatAsMessages(context.Background(), Context{Conversation: conv, Documents: docs})

		assert.False(t, b.OverBudget)
		assert.LessOrEqual(t, b.Total, b.Limit)
		assert.Greater(t, b.Dropped, 0)
		assert.Equal(t, core.RoleSystem, msgs[0].Role, "documents survive while old turns can go")
		assert.Equal(t, conv[9].Text, msgs[len(msgs)-1].Content)
		assert.NotEqual(t, conv[0].Text, msgs[1].Content)
	})

	t.Run("keeps the recent window even over budget", func(t *testing.T) {
		a := newTestAssembler(&mockStore{}, func(cfg *config.RetrievalConfig) {
			cfg.MaxHistoryTokens = per
			cfg.IncludeRecentTurns = 3
		})
		msgs, b := a.FormatAsMessages(context.Background(), Context{Conversation: conv, Documents: docs})

		require.Len(t, msgs, 3)
		assert.True(t, b.OverBudget)
		assert.Equal(t, 8, b.Dropped, "seven turns and the documents message")
		for i, m := range msgs {
			assert.Equal(t, conv[7+i].Text, m.Content)
		}
	})
}

func TestSummary(t *testing.T) {
	long := strings.Repeat("é", 150)
	store := &mockStore{
		recent: []memory.Item{
			turn("u1", core.RoleUser, "short", base),
			turn("a1", core.RoleAssistant, long, base+60),
		},
		stats: memory.Stats{TotalItems: 12, UserMessages: 5, AssistantMessages: 5, DocumentChunks: 2},
	}
	a := newTestAssembler(store, nil)

	got, err := a.Summary(context.Background(), 10)
	require.NoError(t, err)

	lines := strings.Split(got, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Conversation History Summary (from 10 total messages):", lines[0])
	ts := time.Unix(int64(base), 0).UTC().Format("2006-01-02 15:04")
	assert.Equal(t, "1. User ("+ts+"): short...", lines[1])
	assert.True(t, strings.HasSuffix(lines[2], strings.Repeat("é", 100)+"..."))

	empty, err := newTestAssembler(&mockStore{}, nil).Summary(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, "No conversation history available.", empty)
}

type modelRecorder struct {
	*tokens.Budgeter
	models []string
}

func (r *modelRecorder) Count(text, model string) int {
	r.models = append(r.models, model)
	return r.Budgeter.Count(text, model)
}

func TestAssemblerFollowsModelSwitch(t *testing.T) {
	rec := &modelRecorder{Budgeter: tokens.NewHeuristic()}
	cfg := &config.RetrievalConfig{MaxHistoryTokens: 2000, IncludeRecentTurns: 4}
	current := "llama3"
	a := NewAssembler(&mockStore{}, cfg, rec, "llama3").FollowModel(func() string { return current })
	c := Context{Conversation: []memory.Item{turn("u1", core.RoleUser, "hi", base)}}

	a.FormatForPrompt(context.Background(), c)
	require.NotEmpty(t, rec.models)
	assert.Equal(t, "llama3", rec.models[len(rec.models)-1])

	current = "gpt-4o"
	rec.models = nil
	a.FormatForPrompt(context.Background(), c)
	a.FormatAsMessages(context.Background(), c)
	require.NotEmpty(t, rec.models)
	for _, m := range rec.models {
		assert.Equal(t, "gpt-4o", m)
	}

	current = ""
	rec.models = nil
	a.FormatForPrompt(context.Background(), c)
	assert.Equal(t, []string{"llama3"}, rec.models, "an empty model falls back to the initial one")
}
