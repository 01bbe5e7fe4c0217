package mcp

import (
	"context"
	"errors"
	"io"

	"github.com/mark3labs/mcp-go/server"
	"github.com/sandevgo/localrag/internal/config"
	"github.com/sandevgo/localrag/internal/core"
	"github.com/sandevgo/localrag/internal/service/memory"
	"github.com/sandevgo/localrag/internal/service/retrieval"
	"github.com/sandevgo/localrag/pkg/log"
)

const instructions = `localrag is a local memory of past conversations and indexed documents.
Use search_memory or get_context before answering questions about the user's notes or files.
Use index_document to add a file or pasted text, add_memory to remember a single fact.`

type MemoryStore interface {
	Insert(ctx context.Context, in memory.Input) (string, error)
	Search(ctx context.Context, q memory.Query) ([]memory.Hit, error)
	Stats(ctx context.Context) (memory.Stats, error)
}

type DocumentIndex interface {
	IndexSource(ctx context.Context, doc core.Document) (string, bool, error)
	Deindex(ctx context.Context, docID string) (bool, error)
	Documents(ctx context.Context) ([]core.IndexRecord, error)
}

type DocumentLoader interface {
	LoadFile(ctx context.Context, path string) (core.Document, bool, error)
	FromText(text, name string) (core.Document, bool)
}

type ContextAssembler interface {
	Assemble(ctx context.Context, query string, nConversation, nDocuments int) (retrieval.Context, error)
	FormatForPrompt(ctx context.Context, c retrieval.Context) (string, retrieval.Budget)
	Config() config.RetrievalConfig
}

// Server exposes the memory store and document index as MCP tools over
// stdio.
type Server struct {
	mcp    *server.MCPServer
	tools  *toolset
	stdin  io.Reader
	stdout io.Writer
}

func NewServer(store MemoryStore, index DocumentIndex, loader DocumentLoader, assembler ContextAssembler, stdin io.Reader, stdout io.Writer) *Server {
	s := server.NewMCPServer(
		core.AppName,
		core.AppVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	t := &toolset{store: store, index: index, loader: loader, assembler: assembler}
	t.register(s)

	return &Server{mcp: s, tools: t, stdin: stdin, stdout: stdout}
}

// Start serves until stdin closes or ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	log.FromCtx(ctx).Info().Msg("mcp server listening on stdio")

	stdio := server.NewStdioServer(s.mcp)
	err := stdio.Listen(ctx, s.stdin, s.stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return nil
}
