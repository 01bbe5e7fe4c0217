package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sandevgo/localrag/internal/core"
	"github.com/sandevgo/localrag/internal/service/memory"
)

const (
	defaultSearchResults = 5
	defaultRecentTurns   = 10
	previewLength        = 120
)

var errMissingQuery = errors.New("missing query")

// parseCount reads an optional positive count argument.
func parseCount(args []string, def int) (int, error) {
	if len(args) == 0 {
		return def, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid count %q", args[0])
	}
	return n, nil
}

func describeHit(f *ResponseFormatter, h memory.Hit) string {
	md := h.Item.Metadata
	label := md.Role()
	if md.IsDocumentChunk() {
		label = "doc " + md.String(core.MetaFilename)
	}
	score := "n/a"
	if rel, ok := h.Relevance(); ok {
		score = fmt.Sprintf("%.2f", rel)
	}
	return fmt.Sprintf("[%s] (%s) %s", label, score, f.Preview(h.Item.Text, previewLength))
}

type SearchCommand struct {
	store     MemoryStore
	formatter *ResponseFormatter
}

func NewSearchCommand(store MemoryStore) *SearchCommand {
	return &SearchCommand{store: store, formatter: NewResponseFormatter()}
}

func (c *SearchCommand) Name() string        { return "search" }
func (c *SearchCommand) Description() string { return "Search conversation and documents" }

func (c *SearchCommand) Execute(ctx context.Context, sessionID string, args []string) (string, error) {
	query := strings.Join(args, " ")
	if strings.TrimSpace(query) == "" {
		return "", errMissingQuery
	}

	hits, err := c.store.Search(ctx, memory.Query{Text: query, Limit: defaultSearchResults})
	if err != nil {
		return "", err
	}
	return FormatHits(query, hits), nil
}

// FormatHits renders search results as a markdown list.
func FormatHits(query string, hits []memory.Hit) string {
	f := NewResponseFormatter()
	if len(hits) == 0 {
		return f.Warning("Nothing found.")
	}

	items := make([]string, len(hits))
	for i, h := range hits {
		items[i] = describeHit(f, h)
	}
	return f.Combine(
		f.Info(fmt.Sprintf("Results for %q", query)),
		f.List(items),
	)
}

type RecentCommand struct {
	store     MemoryStore
	formatter *ResponseFormatter
}

func NewRecentCommand(store MemoryStore) *RecentCommand {
	return &RecentCommand{store: store, formatter: NewResponseFormatter()}
}

func (c *RecentCommand) Name() string        { return "recent" }
func (c *RecentCommand) Description() string { return "Show the latest conversation turns" }

func (c *RecentCommand) Execute(ctx context.Context, sessionID string, args []string) (string, error) {
	n, err := parseCount(args, defaultRecentTurns)
	if err != nil {
		return "", err
	}

	items, err := c.store.Recent(ctx, n)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return c.formatter.Warning("No conversation yet."), nil
	}

	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = fmt.Sprintf("%s %s: %s",
			c.formatter.Time(item.Metadata.Timestamp()),
			item.Metadata.Role(),
			c.formatter.Preview(item.Text, previewLength))
	}
	return c.formatter.Combine(
		c.formatter.Info("Recent Conversation"),
		c.formatter.List(lines),
	), nil
}

type StatsCommand struct {
	store     MemoryStore
	formatter *ResponseFormatter
}

func NewStatsCommand(store MemoryStore) *StatsCommand {
	return &StatsCommand{store: store, formatter: NewResponseFormatter()}
}

func (c *StatsCommand) Name() string        { return "stats" }
func (c *StatsCommand) Description() string { return "Show memory statistics" }

func (c *StatsCommand) Execute(ctx context.Context, sessionID string, args []string) (string, error) {
	st, err := c.store.Stats(ctx)
	if err != nil {
		return "", err
	}
	return c.formatter.Combine(
		c.formatter.Info("Memory"),
		c.formatter.Label("Mode", st.Mode),
		c.formatter.Label("Total items", strconv.Itoa(st.TotalItems)),
		c.formatter.Label("User messages", strconv.Itoa(st.UserMessages)),
		c.formatter.Label("Assistant messages", strconv.Itoa(st.AssistantMessages)),
		c.formatter.Label("Document chunks", strconv.Itoa(st.DocumentChunks)),
		c.formatter.Label("Oldest", c.formatter.Time(st.OldestTimestamp)),
		c.formatter.Label("Newest", c.formatter.Time(st.NewestTimestamp)),
	), nil
}

type ClearCommand struct {
	store     MemoryStore
	index     DocumentIndex
	formatter *ResponseFormatter
}

func NewClearCommand(store MemoryStore, index DocumentIndex) *ClearCommand {
	return &ClearCommand{store: store, index: index, formatter: NewResponseFormatter()}
}

func (c *ClearCommand) Name() string        { return "clear" }
func (c *ClearCommand) Description() string { return "Erase all memory and indexed documents" }

func (c *ClearCommand) Execute(ctx context.Context, sessionID string, args []string) (string, error) {
	if len(args) == 0 || args[0] != "confirm" {
		return c.formatter.Combine(
			c.formatter.Warning("This removes every conversation turn and document chunk."),
			c.formatter.Usage("/clear confirm"),
		), nil
	}

	if err := c.store.Clear(ctx); err != nil {
		return "", err
	}
	if err := c.index.Reset(ctx); err != nil {
		return "", err
	}
	return c.formatter.Success("Memory cleared"), nil
}

type ContextCommand struct {
	assembler ContextAssembler
	formatter *ResponseFormatter
}

func NewContextCommand(assembler ContextAssembler) *ContextCommand {
	return &ContextCommand{assembler: assembler, formatter: NewResponseFormatter()}
}

func (c *ContextCommand) Name() string        { return "context" }
func (c *ContextCommand) Description() string { return "Show the context retrieved for a query" }

func (c *ContextCommand) Execute(ctx context.Context, sessionID string, args []string) (string, error) {
	query := strings.Join(args, " ")
	cfg := c.assembler.Config()

	rc, err := c.assembler.Assemble(ctx, query, cfg.ConversationResults, cfg.MaxRelevantChunks)
	if err != nil {
		return "", err
	}
	if rc.Empty() {
		return c.formatter.Warning("No context; the model would answer from general knowledge."), nil
	}

	text, budget := c.assembler.FormatForPrompt(ctx, rc)
	sections := []string{
		c.formatter.Info("Retrieved Context"),
		c.formatter.Label("Turns", strconv.Itoa(len(rc.Conversation))),
		c.formatter.Label("Documents", strconv.Itoa(len(rc.Documents))),
		c.formatter.Label("Tokens", fmt.Sprintf("%d / %d", budget.Total, budget.Limit)),
	}
	if budget.Truncated {
		sections = append(sections, c.formatter.Warning("Oldest part truncated to fit the budget."))
	}
	sections = append(sections, c.formatter.Block(text))
	return c.formatter.Combine(sections...), nil
}

type SummaryCommand struct {
	assembler ContextAssembler
}

func NewSummaryCommand(assembler ContextAssembler) *SummaryCommand {
	return &SummaryCommand{assembler: assembler}
}

func (c *SummaryCommand) Name() string        { return "summary" }
func (c *SummaryCommand) Description() string { return "Summarize recent conversation" }

func (c *SummaryCommand) Execute(ctx context.Context, sessionID string, args []string) (string, error) {
	n, err := parseCount(args, defaultRecentTurns)
	if err != nil {
		return "", err
	}
	return c.assembler.Summary(ctx, n)
}
