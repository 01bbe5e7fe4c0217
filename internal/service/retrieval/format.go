package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/sandevgo/localrag/internal/core"
	"github.com/sandevgo/localrag/pkg/log"
)

const (
	timeLayout     = "2006-01-02 15:04:05"
	shortLayout    = "2006-01-02 15:04"
	summaryPreview = 100
)

// location is used to render timestamps; tests pin it to UTC.
var location = time.Local

func speaker(role string) string {
	switch role {
	case core.RoleUser:
		return "User"
	case core.RoleAssistant:
		return "Assistant"
	case "":
		return "Unknown"
	}
	r, size := utf8.DecodeRuneInString(role)
	return string(unicode.ToUpper(r)) + role[size:]
}

func stamp(ts float64, layout string) string {
	if ts <= 0 {
		return ""
	}
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).In(location).Format(layout)
}

func conversationLine(item core.MemoryItem) string {
	ts := stamp(item.Metadata.Timestamp(), timeLayout)
	if ts == "" {
		return fmt.Sprintf("%s: %s", speaker(item.Metadata.Role()), item.Text)
	}
	return fmt.Sprintf("%s [%s]: %s", speaker(item.Metadata.Role()), ts, item.Text)
}

func orUnknown(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func (c Context) documentBlocks() []string {
	blocks := make([]string, 0, len(c.Documents))
	for _, h := range c.Documents {
		relevance := "unknown"
		if rel, ok := h.Relevance(); ok {
			relevance = fmt.Sprintf("%.2f", rel)
		}
		md := h.Item.Metadata
		blocks = append(blocks, fmt.Sprintf("[Document: %s (ID: %s) - Relevance: %s]:\n%s",
			orUnknown(md.String(core.MetaFilename), "unknown document"),
			orUnknown(md.String(core.MetaDocID), "unknown"),
			relevance,
			h.Item.Text))
	}
	return blocks
}

// FormatForPrompt renders c as one string: conversation lines oldest first,
// then document blocks. Over budget, the oldest part is cut off.
func (a *Assembler) FormatForPrompt(ctx context.Context, c Context) (string, Budget) {
	parts := make([]string, 0, len(c.Conversation)+len(c.Documents))
	for _, item := range c.Conversation {
		parts = append(parts, conversationLine(item))
	}
	parts = append(parts, c.documentBlocks()...)

	text := strings.Join(parts, "\n\n")
	model := a.currentModel()
	b := Budget{
		Total:    a.tk.Count(text, model),
		Limit:    a.cfg.MaxHistoryTokens,
		Included: len(parts),
	}
	if b.Limit > 0 && b.Total > b.Limit {
		log.FromCtx(ctx).Debug().Int("tokens", b.Total).Int("limit", b.Limit).Msg("truncating context")
		text = a.tk.TruncateFront(text, b.Limit, model)
		b.Total = a.tk.Count(text, model)
		b.Truncated = true
	}
	return text, b
}

// FormatAsMessages renders c as chat messages. Documents become one leading
// system message. Over budget, whole conversation messages are dropped from
// the oldest end while more than include_recent_turns remain, then the
// documents message; a single message is never cut.
func (a *Assembler) FormatAsMessages(ctx context.Context, c Context) ([]core.Message, Budget) {
	logger := log.FromCtx(ctx)
	model := a.currentModel()

	var docs *core.Message
	if blocks := c.documentBlocks(); len(blocks) > 0 {
		docs = &core.Message{Role: core.RoleSystem, Content: "Relevant documents:\n\n" + strings.Join(blocks, "\n\n")}
	}

	conv := make([]core.Message, 0, len(c.Conversation))
	for _, item := range c.Conversation {
		role := item.Metadata.Role()
		if role != core.RoleUser && role != core.RoleAssistant {
			logger.Warn().Str("role", role).Str("id", item.ID).Msg("unknown role in context, treating as user")
			role = core.RoleUser
		}
		conv = append(conv, core.Message{Role: role, Content: item.Text})
	}

	costs := make([]int, len(conv))
	total := 0
	for i, m := range conv {
		costs[i] = a.tk.Count(m.Content, model)
		total += costs[i]
	}
	docCost := 0
	if docs != nil {
		docCost = a.tk.Count(docs.Content, model)
		total += docCost
	}

	b := Budget{Limit: a.cfg.MaxHistoryTokens}
	if b.Limit > 0 {
		for total > b.Limit && len(conv) > a.cfg.IncludeRecentTurns {
			total -= costs[0]
			conv, costs = conv[1:], costs[1:]
			b.Dropped++
		}
		if total > b.Limit && docs != nil {
			total -= docCost
			docs = nil
			b.Dropped++
		}
		if total > b.Limit {
			b.OverBudget = true
			logger.Warn().Int("tokens", total).Int("limit", b.Limit).Msg("recent turns exceed the history budget")
		}
	}

	msgs := make([]core.Message, 0, len(conv)+1)
	if docs != nil {
		msgs = append(msgs, *docs)
	}
	msgs = append(msgs, conv...)

	b.Total = total
	b.Included = len(msgs)
	return msgs, b
}

// Summary lists the n most recent conversation turns with a short preview.
func (a *Assembler) Summary(ctx context.Context, n int) (string, error) {
	items, err := a.store.Recent(ctx, n)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "No conversation history available.", nil
	}

	st, err := a.store.Stats(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Conversation History Summary (from %d total messages):", st.UserMessages+st.AssistantMessages)
	for i, item := range items {
		fmt.Fprintf(&sb, "\n%d. %s (%s): %s...", i+1,
			speaker(item.Metadata.Role()),
			stamp(item.Metadata.Timestamp(), shortLayout),
			preview(item.Text, summaryPreview))
	}
	return sb.String(), nil
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
