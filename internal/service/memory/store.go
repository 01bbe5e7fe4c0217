package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sandevgo/localrag/internal/core"
	"github.com/sandevgo/localrag/internal/storage/jsonfile"
	"github.com/sandevgo/localrag/pkg/log"
)

// pairGap orders the assistant turn after the user turn of one exchange.
const pairGap = 0.1

// Store persists memory items in a vector index. When no index is usable, or
// the index fails with a backend error, it keeps an in-process list saved to
// a JSON file instead, for the rest of its lifetime.
type Store struct {
	mu       sync.RWMutex
	cfg      Config
	embedder core.Embedder
	backends []core.VectorIndex

	index core.VectorIndex // nil when degraded
	items []Item           // degraded mode only

	now func() time.Time
}

func Open(ctx context.Context, cfg Config, embedder core.Embedder, backends ...core.VectorIndex) (*Store, error) {
	logger := log.FromCtx(ctx)

	s := &Store{
		cfg:      cfg,
		embedder: embedder,
		backends: backends,
		now:      time.Now,
	}

	for _, b := range backends {
		switch c := Probe(ctx, b).(type) {
		case Active:
			s.index = c.Index
		case Unavailable:
			logger.Warn().Str("reason", c.Reason).Msg("vector backend unavailable")
		}
		if s.index != nil {
			break
		}
	}

	var file fallbackFile
	if _, err := jsonfile.Load(cfg.FallbackPath, &file); err != nil {
		if s.index == nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptCollection, err)
		}
		logger.Warn().Err(err).Str("path", cfg.FallbackPath).Msg("ignoring unreadable fallback file")
		file = fallbackFile{}
	}

	if s.index == nil {
		s.items = file.Items
		logger.Warn().
			Str("path", cfg.FallbackPath).
			Int("items", len(s.items)).
			Msg("memory store running in fallback mode")
		return s, nil
	}

	if len(file.Items) > 0 {
		s.adopt(ctx, file.Items)
	}

	logger.Info().Str("mode", s.mode()).Str("collection", cfg.Collection).Msg("memory store ready")
	return s, nil
}

// adopt moves items left by an earlier degraded run into the index.
func (s *Store) adopt(ctx context.Context, items []Item) {
	logger := log.FromCtx(ctx)

	if err := s.index.Put(ctx, items...); err != nil {
		logger.Warn().Err(err).Int("items", len(items)).Msg("failed to import fallback items, keeping file")
		return
	}
	if err := jsonfile.Save(s.cfg.FallbackPath, fallbackFile{Collection: s.cfg.Collection}); err != nil {
		logger.Warn().Err(err).Msg("failed to truncate fallback file")
	}
	logger.Info().Int("items", len(items)).Msg("imported fallback items into vector index")
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, b := range s.backends {
		if b == nil {
			continue
		}
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Store) Mode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode()
}

func (s *Store) mode() string {
	if s.index == nil {
		return "fallback"
	}
	return "vector:" + s.index.Name()
}

func (s *Store) timestamp() float64 {
	return float64(s.now().UnixNano()) / 1e9
}

// Insert stores one item and returns its id. Blank text is ignored.
func (s *Store) Insert(ctx context.Context, in Input) (string, error) {
	ids, err := s.InsertMany(ctx, []Input{in})
	if err != nil || len(ids) == 0 {
		return "", err
	}
	return ids[0], nil
}

// InsertMany stores items in one write. Missing embeddings are computed with
// a single embedder call. Inputs with blank text are skipped and get no id.
func (s *Store) InsertMany(ctx context.Context, inputs []Input) ([]string, error) {
	ts := s.timestamp()

	items := make([]Item, 0, len(inputs))
	var (
		texts []string
		slots []int
	)
	for _, in := range inputs {
		if strings.TrimSpace(in.Text) == "" {
			continue
		}
		id := in.ID
		if id == "" {
			id = uuid.NewString()
		}
		md := in.Metadata.Clone()
		if _, ok := md[core.MetaTimestamp]; !ok {
			md[core.MetaTimestamp] = ts
		}
		if in.Embedding == nil {
			texts = append(texts, in.Text)
			slots = append(slots, len(items))
		}
		items = append(items, Item{ID: id, Text: in.Text, Embedding: in.Embedding, Metadata: md})
	}
	if len(items) == 0 {
		return nil, nil
	}

	if len(texts) > 0 {
		vecs, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed items: %w", err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
		}
		for i, slot := range slots {
			items[slot].Embedding = vecs[i]
		}
	}

	if err := s.put(ctx, items); err != nil {
		return nil, err
	}

	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids, nil
}

// AddConversationPair stores one exchange. The assistant turn is stamped
// just after the user turn so the pair always sorts in order.
func (s *Store) AddConversationPair(ctx context.Context, user, assistant string) (string, string, error) {
	ts := s.timestamp()

	ids, err := s.InsertMany(ctx, []Input{
		{ID: uuid.NewString(), Text: user, Metadata: core.Metadata{core.MetaRole: core.RoleUser, core.MetaTimestamp: ts}},
		{ID: uuid.NewString(), Text: assistant, Metadata: core.Metadata{core.MetaRole: core.RoleAssistant, core.MetaTimestamp: ts + pairGap}},
	})
	if err != nil {
		return "", "", err
	}

	var userID, assistantID string
	switch {
	case len(ids) == 2:
		userID, assistantID = ids[0], ids[1]
	case len(ids) == 1 && strings.TrimSpace(user) != "":
		userID = ids[0]
	case len(ids) == 1:
		assistantID = ids[0]
	}
	return userID, assistantID, nil
}

func (s *Store) put(ctx context.Context, items []Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index != nil {
		err := s.index.Put(ctx, items...)
		if err == nil {
			return nil
		}
		if isFatal(ctx, err) {
			return err
		}
		s.demote(ctx, err)
	}

	if dim := s.fallbackDimension(); dim > 0 {
		for _, item := range items {
			if len(item.Embedding) != dim {
				return fmt.Errorf("%w: item %s has %d values, collection has %d",
					ErrDimensionMismatch, item.ID, len(item.Embedding), dim)
			}
		}
	}

	for _, item := range items {
		if i := s.fallbackIndex(item.ID); i >= 0 {
			s.items[i] = item
		} else {
			s.items = append(s.items, item)
		}
	}
	return s.save()
}

// Search ranks items by cosine distance to the query. In fallback mode the
// filtered items are returned newest first, without distances. A blank query
// without an embedding matches nothing in either mode.
func (s *Store) Search(ctx context.Context, q Query) ([]Hit, error) {
	if q.Limit <= 0 {
		return nil, nil
	}
	if q.Embedding == nil && strings.TrimSpace(q.Text) == "" {
		return nil, nil
	}

	if s.active() {
		emb := q.Embedding
		if emb == nil {
			vecs, err := s.embedder.Embed(ctx, []string{q.Text})
			if err != nil {
				return nil, fmt.Errorf("failed to embed query: %w", err)
			}
			if len(vecs) != 1 {
				return nil, fmt.Errorf("embedder returned %d vectors for 1 text", len(vecs))
			}
			emb = vecs[0]
		}

		var matches []core.Match
		served, err := s.read(ctx, func(idx core.VectorIndex) error {
			var err error
			matches, err = idx.Query(ctx, emb, q.Limit, q.Filter)
			return err
		})
		if err != nil {
			return nil, err
		}
		if served {
			hits := make([]Hit, len(matches))
			for i, m := range matches {
				hits[i] = Hit{Item: m.Item, Distance: m.Distance, HasDistance: true}
			}
			return hits, nil
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []Hit
	for _, item := range s.newestFirst() {
		if !item.Metadata.Matches(q.Filter) {
			continue
		}
		hits = append(hits, Hit{Item: item})
		if len(hits) == q.Limit {
			break
		}
	}
	return hits, nil
}

// Recent returns the n newest conversation items in ascending time order.
func (s *Store) Recent(ctx context.Context, n int) ([]Item, error) {
	if n <= 0 {
		return nil, nil
	}

	all, err := s.all(ctx)
	if err != nil {
		return nil, err
	}

	var conv []Item
	for _, item := range all {
		if item.Metadata.IsConversation() {
			conv = append(conv, item)
		}
	}
	sortAscending(conv)
	if len(conv) > n {
		conv = conv[len(conv)-n:]
	}
	return conv, nil
}

func (s *Store) Get(ctx context.Context, id string) (Item, bool, error) {
	var (
		item Item
		ok   bool
	)
	served, err := s.read(ctx, func(idx core.VectorIndex) error {
		var err error
		item, ok, err = idx.Get(ctx, id)
		return err
	})
	if err != nil {
		return Item{}, false, err
	}
	if served {
		return item, ok, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.fallbackIndex(id); i >= 0 {
		return s.items[i], true, nil
	}
	return Item{}, false, nil
}

// Delete removes one item. Deleting a missing id reports false.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.DeleteMany(ctx, id)
	return n > 0, err
}

func (s *Store) DeleteMany(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index != nil {
		n, err := s.index.Delete(ctx, ids...)
		if err == nil {
			return n, nil
		}
		if isFatal(ctx, err) {
			return 0, err
		}
		s.demote(ctx, err)
	}

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := s.items[:0]
	deleted := 0
	for _, item := range s.items {
		if drop[item.ID] {
			deleted++
			continue
		}
		kept = append(kept, item)
	}
	s.items = kept
	if deleted == 0 {
		return 0, nil
	}
	return deleted, s.save()
}

// Clear removes every item of the collection.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index != nil {
		err := s.index.Reset(ctx)
		if err == nil {
			return nil
		}
		if isFatal(ctx, err) {
			return err
		}
		s.demote(ctx, err)
	}

	s.items = nil
	return s.save()
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	all, err := s.all(ctx)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{TotalItems: len(all), Mode: s.Mode()}
	for i, item := range all {
		switch {
		case item.Metadata.IsDocumentChunk():
			st.DocumentChunks++
		case item.Metadata.Role() == core.RoleUser:
			st.UserMessages++
		case item.Metadata.Role() == core.RoleAssistant:
			st.AssistantMessages++
		}

		ts := item.Metadata.Timestamp()
		if i == 0 || ts < st.OldestTimestamp {
			st.OldestTimestamp = ts
		}
		if i == 0 || ts > st.NewestTimestamp {
			st.NewestTimestamp = ts
		}
	}
	return st, nil
}

// All returns every stored item in ascending time order.
func (s *Store) All(ctx context.Context) ([]Item, error) {
	all, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	sortAscending(all)
	return all, nil
}

func (s *Store) all(ctx context.Context) ([]Item, error) {
	var items []Item
	served, err := s.read(ctx, func(idx core.VectorIndex) error {
		var err error
		items, err = idx.List(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if served {
		return items, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Item(nil), s.items...), nil
}

func (s *Store) active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index != nil
}

// read runs op against the index under the read lock. served is false when
// the store is degraded, or op hit a backend error and the store was
// demoted; the caller then answers from the fallback list.
func (s *Store) read(ctx context.Context, op func(core.VectorIndex) error) (bool, error) {
	s.mu.RLock()
	idx := s.index
	if idx == nil {
		s.mu.RUnlock()
		return false, nil
	}
	err := op(idx)
	s.mu.RUnlock()

	if err == nil {
		return true, nil
	}
	if isFatal(ctx, err) {
		return false, err
	}

	s.mu.Lock()
	if s.index == idx {
		s.demote(ctx, err)
	}
	s.mu.Unlock()
	return false, nil
}

// demote switches to fallback mode for good. Items still listable from the
// index are carried over. Caller holds the write lock.
func (s *Store) demote(ctx context.Context, cause error) {
	logger := log.FromCtx(ctx)
	name := s.index.Name()

	items, err := s.index.List(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("could not migrate items from vector backend")
	}

	s.index = nil
	for _, item := range items {
		if s.fallbackIndex(item.ID) < 0 {
			s.items = append(s.items, item)
		}
	}

	logger.Warn().
		Err(cause).
		Str("backend", name).
		Int("migrated", len(items)).
		Msg("vector backend failed, memory store switched to fallback mode")

	if err := s.save(); err != nil {
		logger.Error().Err(err).Msg("failed to persist fallback items")
	}
}

func (s *Store) save() error {
	if s.cfg.FallbackPath == "" {
		return nil
	}
	if err := jsonfile.Save(s.cfg.FallbackPath, fallbackFile{Collection: s.cfg.Collection, Items: s.items}); err != nil {
		return fmt.Errorf("failed to save fallback items: %w", err)
	}
	return nil
}

func (s *Store) fallbackIndex(id string) int {
	for i, item := range s.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) fallbackDimension() int {
	if len(s.items) == 0 {
		return 0
	}
	return len(s.items[0].Embedding)
}

func (s *Store) newestFirst() []Item {
	items := append([]Item(nil), s.items...)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Metadata.Timestamp() > items[j].Metadata.Timestamp()
	})
	return items
}

func sortAscending(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Metadata.Timestamp() < items[j].Metadata.Timestamp()
	})
}

// isFatal reports errors that must reach the caller instead of demoting the
// store.
func isFatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrCorruptCollection)
}
