package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sandevgo/localrag/internal/core"
)

type DocsCommand struct {
	index     DocumentIndex
	formatter *ResponseFormatter
}

func NewDocsCommand(index DocumentIndex) *DocsCommand {
	return &DocsCommand{index: index, formatter: NewResponseFormatter()}
}

func (c *DocsCommand) Name() string        { return "docs" }
func (c *DocsCommand) Description() string { return "List indexed documents" }

func (c *DocsCommand) Execute(ctx context.Context, sessionID string, args []string) (string, error) {
	docs, err := c.index.Documents(ctx)
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return c.formatter.Combine(
			c.formatter.Warning("No documents indexed."),
			c.formatter.Usage("/index <path>"),
		), nil
	}

	items := make([]string, len(docs))
	for i, d := range docs {
		items[i] = fmt.Sprintf("`%s` %s (%d chunks, %s)", d.DocID, d.Source, d.ChunkCount, d.IndexedAt.Local().Format("2006-01-02 15:04"))
	}
	return c.formatter.Combine(
		c.formatter.Info(fmt.Sprintf("Documents (%d)", len(docs))),
		c.formatter.List(items),
	), nil
}

type IndexCommand struct {
	loader    DocumentLoader
	index     DocumentIndex
	formatter *ResponseFormatter
}

func NewIndexCommand(loader DocumentLoader, index DocumentIndex) *IndexCommand {
	return &IndexCommand{loader: loader, index: index, formatter: NewResponseFormatter()}
}

func (c *IndexCommand) Name() string        { return "index" }
func (c *IndexCommand) Description() string { return "Index a .txt, .md or .html file" }

func (c *IndexCommand) Execute(ctx context.Context, sessionID string, args []string) (string, error) {
	if len(args) == 0 {
		return c.formatter.Usage("/index <path>"), nil
	}
	path := strings.Join(args, " ")

	doc, ok, err := c.loader.LoadFile(ctx, path)
	if err != nil {
		return "", err
	}
	if !ok {
		return c.formatter.Warning(fmt.Sprintf("Could not load %s (missing, empty, too large or unsupported).", path)), nil
	}

	docID, indexed, err := c.index.IndexSource(ctx, doc)
	if err != nil {
		return "", err
	}
	if !indexed {
		return c.formatter.Warning("Nothing to index."), nil
	}
	return c.formatter.Success(fmt.Sprintf("Indexed %s as `%s`", doc.Metadata.String(core.MetaFilename), docID)), nil
}

type ForgetCommand struct {
	index     DocumentIndex
	formatter *ResponseFormatter
}

func NewForgetCommand(index DocumentIndex) *ForgetCommand {
	return &ForgetCommand{index: index, formatter: NewResponseFormatter()}
}

func (c *ForgetCommand) Name() string        { return "forget" }
func (c *ForgetCommand) Description() string { return "Remove a document from the index" }

func (c *ForgetCommand) Execute(ctx context.Context, sessionID string, args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.New("usage: /forget <doc_id>")
	}

	removed, err := c.index.Deindex(ctx, args[0])
	if err != nil {
		return "", err
	}
	if !removed {
		return c.formatter.Warning(fmt.Sprintf("Document `%s` is not indexed.", args[0])), nil
	}
	return c.formatter.Success(fmt.Sprintf("Document `%s` removed", args[0])), nil
}
