package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mcpproto "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sandevgo/localrag/internal/core"
	"github.com/sandevgo/localrag/internal/service/memory"
	"github.com/sandevgo/localrag/pkg/log"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 50

	scopeAll          = "all"
	scopeConversation = "conversation"
	scopeDocuments    = "documents"
)

type toolset struct {
	store     MemoryStore
	index     DocumentIndex
	loader    DocumentLoader
	assembler ContextAssembler
}

func (t *toolset) register(s *server.MCPServer) {
	s.AddTool(mcpproto.NewTool("search_memory",
		mcpproto.WithDescription("Semantic search over stored conversation turns and document chunks."),
		mcpproto.WithString("query", mcpproto.Required(), mcpproto.Description("What to look for")),
		mcpproto.WithNumber("limit", mcpproto.Description("Maximum number of results (default 5)")),
		mcpproto.WithString("scope",
			mcpproto.Description("Restrict results to conversation turns or document chunks"),
			mcpproto.Enum(scopeAll, scopeConversation, scopeDocuments)),
		mcpproto.WithReadOnlyHintAnnotation(true),
	), t.searchMemory)

	s.AddTool(mcpproto.NewTool("get_context",
		mcpproto.WithDescription("Build the prompt context localrag would use to answer a question."),
		mcpproto.WithString("query", mcpproto.Required(), mcpproto.Description("The question to gather context for")),
		mcpproto.WithReadOnlyHintAnnotation(true),
	), t.getContext)

	s.AddTool(mcpproto.NewTool("add_memory",
		mcpproto.WithDescription("Store a piece of text in memory."),
		mcpproto.WithString("text", mcpproto.Required(), mcpproto.Description("Text to remember")),
		mcpproto.WithString("role", mcpproto.Description("Speaker role, user by default")),
	), t.addMemory)

	s.AddTool(mcpproto.NewTool("index_document",
		mcpproto.WithDescription("Index a .txt, .md or .html file, or a block of text, for retrieval."),
		mcpproto.WithString("path", mcpproto.Description("File to index")),
		mcpproto.WithString("text", mcpproto.Description("Text to index when no path is given")),
		mcpproto.WithString("name", mcpproto.Description("Display name for text input")),
	), t.indexDocument)

	s.AddTool(mcpproto.NewTool("deindex_document",
		mcpproto.WithDescription("Remove a document and all of its chunks from the index."),
		mcpproto.WithString("doc_id", mcpproto.Required(), mcpproto.Description("Document id from list_documents")),
		mcpproto.WithDestructiveHintAnnotation(true),
	), t.deindexDocument)

	s.AddTool(mcpproto.NewTool("list_documents",
		mcpproto.WithDescription("List indexed documents."),
		mcpproto.WithReadOnlyHintAnnotation(true),
	), t.listDocuments)

	s.AddTool(mcpproto.NewTool("memory_stats",
		mcpproto.WithDescription("Counts of stored conversation turns and document chunks."),
		mcpproto.WithReadOnlyHintAnnotation(true),
	), t.memoryStats)
}

type hitResult struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	Role      string  `json:"role,omitempty"`
	DocID     string  `json:"doc_id,omitempty"`
	Filename  string  `json:"filename,omitempty"`
	Relevance float64 `json:"relevance,omitempty"`
	Timestamp float64 `json:"timestamp,omitempty"`
}

func (t *toolset) searchMemory(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcpproto.NewToolResultError("query is required"), nil
	}
	limit := req.GetInt("limit", defaultSearchLimit)
	if limit <= 0 || limit > maxSearchLimit {
		return mcpproto.NewToolResultError(fmt.Sprintf("limit must be between 1 and %d", maxSearchLimit)), nil
	}

	q := memory.Query{Text: query, Limit: limit}
	scope := req.GetString("scope", scopeAll)
	switch scope {
	case scopeAll:
	case scopeDocuments:
		q.Filter = core.Metadata{core.MetaType: core.TypeDocumentChunk}
	case scopeConversation:
		// Roles can't be OR-ed in a filter, so over-fetch and drop chunks.
		q.Limit = limit * 3
	default:
		return mcpproto.NewToolResultError(fmt.Sprintf("unknown scope %q", scope)), nil
	}

	hits, err := t.store.Search(ctx, q)
	if err != nil {
		return mcpproto.NewToolResultErrorFromErr("search failed", err), nil
	}

	results := make([]hitResult, 0, len(hits))
	for _, h := range hits {
		if scope == scopeConversation && !h.Item.Metadata.IsConversation() {
			continue
		}
		if len(results) == limit {
			break
		}
		r := hitResult{
			ID:        h.Item.ID,
			Text:      h.Item.Text,
			Role:      h.Item.Metadata.Role(),
			DocID:     h.Item.Metadata.String(core.MetaDocID),
			Filename:  h.Item.Metadata.String(core.MetaFilename),
			Timestamp: h.Item.Metadata.Timestamp(),
		}
		if rel, ok := h.Relevance(); ok {
			r.Relevance = rel
		}
		results = append(results, r)
	}

	log.FromCtx(ctx).Debug().Str("scope", scope).Int("results", len(results)).Msg("mcp search")
	return jsonResult(results)
}

func (t *toolset) getContext(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcpproto.NewToolResultError("query is required"), nil
	}

	cfg := t.assembler.Config()
	c, err := t.assembler.Assemble(ctx, query, cfg.ConversationResults, cfg.MaxRelevantChunks)
	if err != nil {
		return mcpproto.NewToolResultErrorFromErr("failed to assemble context", err), nil
	}
	if c.Empty() {
		return mcpproto.NewToolResultText("No relevant context found."), nil
	}

	text, _ := t.assembler.FormatForPrompt(ctx, c)
	return mcpproto.NewToolResultText(text), nil
}

func (t *toolset) addMemory(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil || strings.TrimSpace(text) == "" {
		return mcpproto.NewToolResultError("text is required"), nil
	}
	role := strings.ToLower(strings.TrimSpace(req.GetString("role", core.RoleUser)))
	if role == "" {
		role = core.RoleUser
	}

	id, err := t.store.Insert(ctx, memory.Input{
		Text:     text,
		Metadata: core.Metadata{core.MetaRole: role},
	})
	if err != nil {
		return mcpproto.NewToolResultErrorFromErr("failed to store memory", err), nil
	}
	return jsonResult(map[string]string{"id": id})
}

type indexResult struct {
	DocID    string `json:"doc_id"`
	Filename string `json:"filename"`
	Chunks   int    `json:"chunks"`
}

func (t *toolset) indexDocument(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
	path := strings.TrimSpace(req.GetString("path", ""))
	text := req.GetString("text", "")

	var (
		doc core.Document
		ok  bool
		err error
	)
	switch {
	case path != "":
		doc, ok, err = t.loader.LoadFile(ctx, path)
		if err != nil {
			return mcpproto.NewToolResultErrorFromErr("failed to load file", err), nil
		}
		if !ok {
			return mcpproto.NewToolResultError(fmt.Sprintf("could not load %s: missing, empty, too large or unsupported", path)), nil
		}
	case strings.TrimSpace(text) != "":
		doc, ok = t.loader.FromText(text, req.GetString("name", ""))
		if !ok {
			return mcpproto.NewToolResultError("text is empty"), nil
		}
	default:
		return mcpproto.NewToolResultError("either path or text is required"), nil
	}

	docID, indexed, err := t.index.IndexSource(ctx, doc)
	if err != nil {
		return mcpproto.NewToolResultErrorFromErr("failed to index document", err), nil
	}
	if !indexed {
		return mcpproto.NewToolResultError("nothing to index"), nil
	}

	res := indexResult{DocID: docID, Filename: doc.Metadata.String(core.MetaFilename)}
	if recs, err := t.index.Documents(ctx); err == nil {
		for _, rec := range recs {
			if rec.DocID == docID {
				res.Chunks = rec.ChunkCount
			}
		}
	}
	return jsonResult(res)
}

func (t *toolset) deindexDocument(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
	docID, err := req.RequireString("doc_id")
	if err != nil || strings.TrimSpace(docID) == "" {
		return mcpproto.NewToolResultError("doc_id is required"), nil
	}

	removed, err := t.index.Deindex(ctx, docID)
	if err != nil {
		return mcpproto.NewToolResultErrorFromErr("failed to remove document", err), nil
	}
	if !removed {
		return mcpproto.NewToolResultError(fmt.Sprintf("document %s is not indexed", docID)), nil
	}
	return mcpproto.NewToolResultText(fmt.Sprintf("Removed document %s", docID)), nil
}

type documentResult struct {
	DocID     string `json:"doc_id"`
	Source    string `json:"source,omitempty"`
	Chunks    int    `json:"chunks"`
	IndexedAt string `json:"indexed_at"`
}

func (t *toolset) listDocuments(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
	recs, err := t.index.Documents(ctx)
	if err != nil {
		return mcpproto.NewToolResultErrorFromErr("failed to list documents", err), nil
	}

	docs := make([]documentResult, 0, len(recs))
	for _, rec := range recs {
		docs = append(docs, documentResult{
			DocID:     rec.DocID,
			Source:    rec.Source,
			Chunks:    rec.ChunkCount,
			IndexedAt: rec.IndexedAt.Format(time.RFC3339),
		})
	}
	return jsonResult(docs)
}

type statsResult struct {
	TotalItems        int    `json:"total_items"`
	UserMessages      int    `json:"user_messages"`
	AssistantMessages int    `json:"assistant_messages"`
	DocumentChunks    int    `json:"document_chunks"`
	Oldest            string `json:"oldest,omitempty"`
	Newest            string `json:"newest,omitempty"`
	Mode              string `json:"mode"`
}

func (t *toolset) memoryStats(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
	st, err := t.store.Stats(ctx)
	if err != nil {
		return mcpproto.NewToolResultErrorFromErr("failed to read stats", err), nil
	}
	return jsonResult(statsResult{
		TotalItems:        st.TotalItems,
		UserMessages:      st.UserMessages,
		AssistantMessages: st.AssistantMessages,
		DocumentChunks:    st.DocumentChunks,
		Oldest:            unixTime(st.OldestTimestamp),
		Newest:            unixTime(st.NewestTimestamp),
		Mode:              st.Mode,
	})
}

func unixTime(ts float64) string {
	if ts == 0 {
		return ""
	}
	sec := int64(ts)
	return time.Unix(sec, int64((ts-float64(sec))*1e9)).UTC().Format(time.RFC3339)
}

func jsonResult(v any) (*mcpproto.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool result: %w", err)
	}
	return mcpproto.NewToolResultText(string(b)), nil
}
