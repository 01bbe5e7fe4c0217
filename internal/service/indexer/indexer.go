package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/sandevgo/localrag/internal/core"
	"github.com/sandevgo/localrag/internal/providers/rag"
	"github.com/sandevgo/localrag/internal/service/memory"
	"github.com/sandevgo/localrag/pkg/log"
)

// Store is the part of memory.Store the indexer writes through.
type Store interface {
	InsertMany(ctx context.Context, inputs []memory.Input) ([]string, error)
	Search(ctx context.Context, q memory.Query) ([]memory.Hit, error)
	DeleteMany(ctx context.Context, ids ...string) (int, error)
}

type Indexer struct {
	store    Store
	chunker  *rag.Chunker
	embedder core.Embedder
	records  core.IndexRecordRepository
	now      func() time.Time
}

func New(store Store, chunker *rag.Chunker, embedder core.Embedder, records core.IndexRecordRepository) *Indexer {
	return &Indexer{
		store:    store,
		chunker:  chunker,
		embedder: embedder,
		records:  records,
		now:      time.Now,
	}
}

func ChunkID(docID string, i int) string {
	return fmt.Sprintf("%s_chunk_%d", docID, i)
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Index chunks, embeds and stores a document. It returns false when there is
// nothing to index. Re-indexing unchanged content is a no-op.
func (ix *Indexer) Index(ctx context.Context, doc core.Document) (bool, error) {
	logger := log.FromCtx(ctx).With().Str("doc_id", doc.ID).Logger()

	if doc.ID == "" || strings.TrimSpace(doc.Text) == "" {
		return false, nil
	}

	hash := contentHash(doc.Text)
	prev, indexed, err := ix.records.GetRecord(ctx, doc.ID)
	if err != nil {
		return false, fmt.Errorf("failed to read index record: %w", err)
	}
	if indexed && prev.ContentHash == hash {
		logger.Debug().Msg("document unchanged, skipping")
		return true, nil
	}

	chunks := ix.chunker.Split(doc.Text)
	if len(chunks) == 0 {
		return false, nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vecs, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return false, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vecs) != len(chunks) {
		return false, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(chunks))
	}

	// The previous copy stays searchable until the new one is ready to store
	if indexed {
		if _, err := ix.Deindex(ctx, doc.ID); err != nil {
			return false, fmt.Errorf("failed to drop previous chunks: %w", err)
		}
	}

	inputs := make([]memory.Input, len(chunks))
	for i, ch := range chunks {
		id := ChunkID(doc.ID, i)
		md := doc.Metadata.Clone()
		for k, v := range ch.Metadata() {
			md[k] = v
		}
		md[core.MetaDocID] = doc.ID
		md[core.MetaChunkID] = id
		md[core.MetaType] = core.TypeDocumentChunk

		inputs[i] = memory.Input{ID: id, Text: ch.Text, Metadata: md, Embedding: vecs[i]}
	}

	ids, err := ix.store.InsertMany(ctx, inputs)
	if err != nil {
		return false, fmt.Errorf("failed to store chunks: %w", err)
	}

	rec := core.IndexRecord{
		DocID:       doc.ID,
		ChunkIDs:    ids,
		ChunkCount:  len(ids),
		IndexedAt:   ix.now().UTC(),
		Source:      doc.Metadata.String(core.MetaSource),
		ContentHash: hash,
	}
	if err := ix.records.SaveRecord(ctx, rec); err != nil {
		return false, fmt.Errorf("failed to save index record: %w", err)
	}

	logger.Info().Int("chunks", len(ids)).Msg("document indexed")
	return true, nil
}

// IndexSource indexes a loaded file under the id already recorded for its
// path, so a file that is loaded again replaces its earlier chunks. Documents
// without a file path are indexed under their own id. It returns the id the
// document ended up under.
func (ix *Indexer) IndexSource(ctx context.Context, doc core.Document) (string, bool, error) {
	if path := doc.Metadata.String(core.MetaFilePath); path != "" {
		recs, err := ix.records.ListRecords(ctx)
		if err != nil {
			return "", false, fmt.Errorf("failed to list index records: %w", err)
		}
		for _, rec := range recs {
			if rec.Source == path {
				doc.ID = rec.DocID
				break
			}
		}
	}

	ok, err := ix.Index(ctx, doc)
	if err != nil || !ok {
		return "", ok, err
	}
	return doc.ID, true, nil
}

// Search returns document chunks relevant to query, optionally limited to
// one document.
func (ix *Indexer) Search(ctx context.Context, query string, n int, docID string) ([]memory.Hit, error) {
	filter := core.Metadata{core.MetaType: core.TypeDocumentChunk}
	if docID != "" {
		filter[core.MetaDocID] = docID
	}
	return ix.store.Search(ctx, memory.Query{Text: query, Limit: n, Filter: filter})
}

// Deindex removes every chunk of a document, then its record. It returns
// false when the document was never indexed.
func (ix *Indexer) Deindex(ctx context.Context, docID string) (bool, error) {
	rec, ok, err := ix.records.GetRecord(ctx, docID)
	if err != nil {
		return false, fmt.Errorf("failed to read index record: %w", err)
	}
	if !ok {
		return false, nil
	}

	n, err := ix.store.DeleteMany(ctx, rec.ChunkIDs...)
	if err != nil {
		return false, fmt.Errorf("failed to delete chunks: %w", err)
	}
	if _, err := ix.records.DeleteRecord(ctx, docID); err != nil {
		return false, fmt.Errorf("failed to delete index record: %w", err)
	}

	log.FromCtx(ctx).Info().Str("doc_id", docID).Int("chunks", n).Msg("document removed from index")
	return true, nil
}

func (ix *Indexer) Documents(ctx context.Context) ([]core.IndexRecord, error) {
	return ix.records.ListRecords(ctx)
}

func (ix *Indexer) Record(ctx context.Context, docID string) (core.IndexRecord, bool, error) {
	return ix.records.GetRecord(ctx, docID)
}

// Reset drops all index records. The chunks themselves are cleared with the
// memory store.
func (ix *Indexer) Reset(ctx context.Context) error {
	return ix.records.ResetRecords(ctx)
}
