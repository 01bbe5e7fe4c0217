package command

import (
	"context"

	"github.com/sandevgo/localrag/internal/config"
	"github.com/sandevgo/localrag/internal/core"
	"github.com/sandevgo/localrag/internal/service/memory"
	"github.com/sandevgo/localrag/internal/service/retrieval"
)

type MemoryStore interface {
	Search(ctx context.Context, q memory.Query) ([]memory.Hit, error)
	Recent(ctx context.Context, n int) ([]memory.Item, error)
	Stats(ctx context.Context) (memory.Stats, error)
	Clear(ctx context.Context) error
}

type DocumentIndex interface {
	IndexSource(ctx context.Context, doc core.Document) (string, bool, error)
	Deindex(ctx context.Context, docID string) (bool, error)
	Documents(ctx context.Context) ([]core.IndexRecord, error)
	Reset(ctx context.Context) error
}

type DocumentLoader interface {
	LoadFile(ctx context.Context, path string) (core.Document, bool, error)
}

type ContextAssembler interface {
	Assemble(ctx context.Context, query string, nConversation, nDocuments int) (retrieval.Context, error)
	FormatForPrompt(ctx context.Context, c retrieval.Context) (string, retrieval.Budget)
	Summary(ctx context.Context, n int) (string, error)
	Config() config.RetrievalConfig
}

type ModelState interface {
	CurrentModel() (provider, model string)
	ChangeModel(ctx context.Context, model string) error
	ListModels(ctx context.Context) ([]core.Model, error)
}
