package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sandevgo/localrag/internal/config"
	"github.com/sandevgo/localrag/internal/core"
	"github.com/sandevgo/localrag/internal/service/memory"
	"github.com/sandevgo/localrag/pkg/log"
)

// overFetch widens the unfiltered conversation search, since document chunks
// compete for the same slots and are dropped afterwards.
const overFetch = 3

type Store interface {
	Search(ctx context.Context, q memory.Query) ([]memory.Hit, error)
	Recent(ctx context.Context, n int) ([]memory.Item, error)
	Stats(ctx context.Context) (memory.Stats, error)
}

type Tokenizer interface {
	Count(text, model string) int
	TruncateFront(text string, maxTokens int, model string) string
}

// Context is the material retrieved for one query. Conversation is in
// ascending time order; Documents keep their search rank.
type Context struct {
	Query        string
	Conversation []memory.Item
	Documents    []memory.Hit
}

func (c Context) Empty() bool {
	return len(c.Conversation) == 0 && len(c.Documents) == 0
}

// Budget reports how a rendered context fits max_history_tokens.
type Budget struct {
	Total      int
	Limit      int
	Included   int
	Dropped    int
	Truncated  bool
	OverBudget bool
}

type Assembler struct {
	store   Store
	cfg     *config.RetrievalConfig
	tk      Tokenizer
	model   string
	modelFn func() string
}

func NewAssembler(store Store, cfg *config.RetrievalConfig, tk Tokenizer, model string) *Assembler {
	return &Assembler{store: store, cfg: cfg, tk: tk, model: model}
}

// FollowModel makes budgeting count tokens for the model fn reports at call
// time. An empty answer falls back to the model given to NewAssembler.
func (a *Assembler) FollowModel(fn func() string) *Assembler {
	a.modelFn = fn
	return a
}

func (a *Assembler) currentModel() string {
	if a.modelFn != nil {
		if m := a.modelFn(); m != "" {
			return m
		}
	}
	return a.model
}

func (a *Assembler) Config() config.RetrievalConfig {
	return *a.cfg
}

// Assemble gathers recent turns, relevant conversation and relevant
// document chunks for query. An empty query only returns recent turns.
func (a *Assembler) Assemble(ctx context.Context, query string, nConversation, nDocuments int) (Context, error) {
	out := Context{Query: query}

	recent, err := a.store.Recent(ctx, a.cfg.IncludeRecentTurns)
	if err != nil {
		return Context{}, fmt.Errorf("failed to load recent turns: %w", err)
	}

	var relevant []memory.Item
	if strings.TrimSpace(query) != "" {
		if nConversation > 0 {
			hits, err := a.store.Search(ctx, memory.Query{Text: query, Limit: nConversation * overFetch})
			if err != nil {
				return Context{}, fmt.Errorf("failed to search conversation: %w", err)
			}
			for _, h := range a.threshold(hits) {
				if h.Item.Metadata.IsDocumentChunk() {
					continue
				}
				relevant = append(relevant, h.Item)
				if len(relevant) == nConversation {
					break
				}
			}
		}

		if nDocuments > 0 {
			hits, err := a.store.Search(ctx, memory.Query{
				Text:   query,
				Limit:  nDocuments,
				Filter: core.Metadata{core.MetaType: core.TypeDocumentChunk},
			})
			if err != nil {
				return Context{}, fmt.Errorf("failed to search documents: %w", err)
			}
			out.Documents = a.threshold(hits)
		}
	}

	out.Conversation = merge(recent, relevant)

	log.FromCtx(ctx).Debug().
		Int("recent", len(recent)).
		Int("relevant", len(relevant)).
		Int("documents", len(out.Documents)).
		Msg("context assembled")
	return out, nil
}

// threshold drops hits ranked below the similarity threshold. Hits without
// a known relevance are kept.
func (a *Assembler) threshold(hits []memory.Hit) []memory.Hit {
	if a.cfg.SimilarityThreshold <= 0 {
		return hits
	}
	kept := hits[:0:0]
	for _, h := range hits {
		if rel, ok := h.Relevance(); ok && rel < a.cfg.SimilarityThreshold {
			continue
		}
		kept = append(kept, h)
	}
	return kept
}

// merge dedups by id with recent items winning and re-imposes time order.
func merge(recent, relevant []memory.Item) []memory.Item {
	seen := make(map[string]bool, len(recent)+len(relevant))
	out := make([]memory.Item, 0, len(recent)+len(relevant))
	for _, set := range [][]memory.Item{recent, relevant} {
		for _, item := range set {
			if seen[item.ID] {
				continue
			}
			seen[item.ID] = true
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Metadata.Timestamp() < out[j].Metadata.Timestamp()
	})
	return out
}
