package chromem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/sandevgo/localrag/internal/core"
	"github.com/sandevgo/localrag/pkg/log"
)

const (
	// metadataKey holds the typed metadata as JSON; chromem only keeps strings.
	metadataKey = "_md"
	metaSuffix  = "__meta"
	dimensionID = "dimension"
)

var errNoEmbeddingFunc = errors.New("embeddings must be supplied by the caller")

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

// Index is a persistent chromem-go collection. The embedding dimension is
// kept in a sidecar collection since chromem does not expose it.
type Index struct {
	mu   sync.Mutex
	db   *chromem.DB
	name string
	col  *chromem.Collection
	meta *chromem.Collection
}

func Open(path, collection string) (*Index, error) {
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open chromem db: %w", err)
	}

	idx := &Index{db: db, name: collection}
	if err := idx.open(); err != nil {
		return nil, err
	}
	return idx, nil
}

func (i *Index) open() error {
	col, err := i.db.GetOrCreateCollection(i.name, nil, noEmbedding)
	if err != nil {
		return fmt.Errorf("failed to open collection %s: %w", i.name, err)
	}
	meta, err := i.db.GetOrCreateCollection(i.name+metaSuffix, nil, noEmbedding)
	if err != nil {
		return fmt.Errorf("failed to open collection %s: %w", i.name+metaSuffix, err)
	}
	i.col, i.meta = col, meta
	return nil
}

func (i *Index) Name() string {
	return "chromem"
}

func (i *Index) Ping(ctx context.Context) error {
	if i.col == nil {
		return errors.New("collection is not open")
	}
	return nil
}

func (i *Index) Dimension(ctx context.Context) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.dimension(ctx)
}

func (i *Index) dimension(ctx context.Context) (int, error) {
	if i.meta.Count() == 0 {
		return 0, nil
	}
	doc, err := i.meta.GetByID(ctx, dimensionID)
	if err != nil {
		return 0, nil
	}
	dim, err := strconv.Atoi(doc.Content)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid dimension %q", core.ErrCorruptCollection, doc.Content)
	}
	return dim, nil
}

func (i *Index) Put(ctx context.Context, items ...core.MemoryItem) error {
	if len(items) == 0 {
		return nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	dim, err := i.dimension(ctx)
	if err != nil {
		return err
	}
	if dim == 0 {
		dim = len(items[0].Embedding)
		err := i.meta.AddDocument(ctx, chromem.Document{
			ID:        dimensionID,
			Content:   strconv.Itoa(dim),
			Embedding: []float32{1},
		})
		if err != nil {
			return fmt.Errorf("failed to store dimension: %w", err)
		}
	}

	docs := make([]chromem.Document, 0, len(items))
	for _, item := range items {
		if len(item.Embedding) != dim {
			return fmt.Errorf("%w: item %s has %d values, collection has %d",
				core.ErrDimensionMismatch, item.ID, len(item.Embedding), dim)
		}
		md, err := encodeMetadata(item.Metadata)
		if err != nil {
			return err
		}
		docs = append(docs, chromem.Document{
			ID:        item.ID,
			Metadata:  md,
			Embedding: item.Embedding,
			Content:   item.Text,
		})
	}

	for _, doc := range docs {
		if err := i.col.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("failed to add document %s: %w", doc.ID, err)
		}
	}
	return nil
}

func (i *Index) Query(ctx context.Context, embedding []float32, limit int, filter core.Metadata) ([]core.Match, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	count := i.col.Count()
	if limit <= 0 || count == 0 {
		return nil, nil
	}
	dim, err := i.dimension(ctx)
	if err != nil {
		return nil, err
	}
	if len(embedding) != dim {
		return nil, fmt.Errorf("%w: query has %d values, collection has %d", core.ErrDimensionMismatch, len(embedding), dim)
	}

	results, err := i.col.QueryEmbedding(ctx, embedding, min(limit, count), whereClause(filter), nil)
	if err != nil {
		if strings.Contains(err.Error(), "same length") {
			return nil, fmt.Errorf("%w: %v", core.ErrDimensionMismatch, err)
		}
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	matches := make([]core.Match, 0, len(results))
	for _, res := range results {
		item, err := toItem(res.ID, res.Content, res.Embedding, res.Metadata)
		if err != nil {
			return nil, err
		}
		matches = append(matches, core.Match{Item: item, Distance: 1 - float64(res.Similarity)})
	}

	log.FromCtx(ctx).Debug().Int("count", len(matches)).Msg("chromem query")
	return matches, nil
}

func (i *Index) Get(ctx context.Context, id string) (core.MemoryItem, bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	doc, err := i.col.GetByID(ctx, id)
	if err != nil {
		// chromem reports a missing id as an error
		return core.MemoryItem{}, false, nil
	}
	item, err := toItem(doc.ID, doc.Content, doc.Embedding, doc.Metadata)
	if err != nil {
		return core.MemoryItem{}, false, err
	}
	return item, true, nil
}

func (i *Index) Delete(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	before := i.col.Count()
	if err := i.col.Delete(ctx, nil, nil, ids...); err != nil {
		return 0, fmt.Errorf("failed to delete documents: %w", err)
	}
	return before - i.col.Count(), nil
}

// List returns every item. chromem has no scan API, so this runs a query
// against a unit vector with the collection size as the limit.
func (i *Index) List(ctx context.Context) ([]core.MemoryItem, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	count := i.col.Count()
	if count == 0 {
		return nil, nil
	}
	dim, err := i.dimension(ctx)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return nil, fmt.Errorf("%w: collection has items but no dimension", core.ErrCorruptCollection)
	}

	probe := make([]float32, dim)
	probe[0] = 1
	results, err := i.col.QueryEmbedding(ctx, probe, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	items := make([]core.MemoryItem, 0, len(results))
	for _, res := range results {
		item, err := toItem(res.ID, res.Content, res.Embedding, res.Metadata)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	sort.Slice(items, func(a, b int) bool { return items[a].ID < items[b].ID })
	return items, nil
}

func (i *Index) Reset(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.db.DeleteCollection(i.name); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	if err := i.db.DeleteCollection(i.name + metaSuffix); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return i.open()
}

// Close is a no-op; chromem persists every write immediately.
func (i *Index) Close() error {
	return nil
}

func whereClause(filter core.Metadata) map[string]string {
	if len(filter) == 0 {
		return nil
	}
	where := make(map[string]string, len(filter))
	for k, v := range filter {
		where[k] = core.Stringify(v)
	}
	return where
}

func encodeMetadata(md core.Metadata) (map[string]string, error) {
	raw, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	out := make(map[string]string, len(md)+1)
	for k, v := range md {
		out[k] = core.Stringify(v)
	}
	out[metadataKey] = string(raw)
	return out, nil
}

func toItem(id, content string, embedding []float32, md map[string]string) (core.MemoryItem, error) {
	item := core.MemoryItem{
		ID:        id,
		Text:      content,
		Embedding: append([]float32(nil), embedding...),
		Metadata:  core.Metadata{},
	}
	raw, ok := md[metadataKey]
	if !ok {
		for k, v := range md {
			item.Metadata[k] = v
		}
		return item, nil
	}
	if err := json.Unmarshal([]byte(raw), &item.Metadata); err != nil {
		return core.MemoryItem{}, fmt.Errorf("%w: item %s has invalid metadata: %v", core.ErrCorruptCollection, id, err)
	}
	if item.Metadata == nil {
		item.Metadata = core.Metadata{}
	}
	return item, nil
}
