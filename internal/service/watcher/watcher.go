package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sandevgo/localrag/internal/core"
	"github.com/sandevgo/localrag/internal/service/loader"
	"github.com/sandevgo/localrag/pkg/log"
)

const defaultDebounce = 500 * time.Millisecond

type DocumentIndex interface {
	IndexSource(ctx context.Context, doc core.Document) (string, bool, error)
	Deindex(ctx context.Context, docID string) (bool, error)
	Documents(ctx context.Context) ([]core.IndexRecord, error)
}

type DocumentLoader interface {
	LoadFile(ctx context.Context, path string) (core.Document, bool, error)
}

// Watcher keeps the document index in step with a directory tree: supported
// files are indexed when they appear or change and dropped when removed.
type Watcher struct {
	root     string
	index    DocumentIndex
	loader   DocumentLoader
	debounce time.Duration

	fsw     *fsnotify.Watcher
	mu      sync.Mutex
	pending map[string]time.Time
}

func New(root string, index DocumentIndex, loader DocumentLoader) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch dir: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat watch dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch path %s is not a directory", abs)
	}

	return &Watcher{
		root:     abs,
		index:    index,
		loader:   loader,
		debounce: defaultDebounce,
		pending:  make(map[string]time.Time),
	}, nil
}

// Sync indexes every supported file under the root and drops records whose
// file is gone.
func (w *Watcher) Sync(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	seen := make(map[string]bool)

	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("skipping unreadable path")
			return nil
		}
		if d.IsDir() {
			if path != w.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !loader.Supported(path) {
			return nil
		}
		seen[path] = true
		w.indexFile(ctx, path)
		return ctx.Err()
	})
	if err != nil {
		return err
	}

	recs, err := w.index.Documents(ctx)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	for _, rec := range recs {
		if w.owns(rec.Source) && !seen[rec.Source] {
			w.removeFile(ctx, rec.Source)
		}
	}
	return nil
}

func (w *Watcher) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx).With().Str("dir", w.root).Logger()
	ctx = logger.WithContext(ctx)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.mu.Lock()
	w.fsw = fsw
	w.mu.Unlock()

	if err := w.addTree(w.root); err != nil {
		return err
	}
	if err := w.Sync(ctx); err != nil {
		logger.Error().Err(err).Msg("initial sync failed")
	}
	logger.Info().Msg("watching directory")

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(err).Msg("file watcher error")
		case now := <-ticker.C:
			w.flush(ctx, now)
		}
	}
}

func (w *Watcher) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return nil
	}
	return w.fsw.Close()
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				log.FromCtx(ctx).Warn().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
			}
			return
		}
	}
	if !loader.Supported(event.Name) {
		return
	}
	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		log.FromCtx(ctx).Debug().
			Str("file", filepath.Base(event.Name)).
			Str("op", event.Op.String()).
			Msg("file change detected")

		w.mu.Lock()
		w.pending[event.Name] = time.Now()
		w.mu.Unlock()
	}
}

// flush processes files that have been quiet for the debounce interval.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	var ready []string
	w.mu.Lock()
	for path, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		if _, err := os.Stat(path); err != nil {
			w.removeFile(ctx, path)
			continue
		}
		w.indexFile(ctx, path)
	}
}

func (w *Watcher) indexFile(ctx context.Context, path string) {
	logger := log.FromCtx(ctx).With().Str("path", path).Logger()

	doc, ok, err := w.loader.LoadFile(ctx, path)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load file")
		return
	}
	if !ok {
		return
	}
	if _, _, err := w.index.IndexSource(ctx, doc); err != nil {
		logger.Error().Err(err).Msg("failed to index file")
	}
}

func (w *Watcher) removeFile(ctx context.Context, path string) {
	recs, err := w.index.Documents(ctx)
	if err != nil {
		log.FromCtx(ctx).Error().Err(err).Msg("failed to list documents")
		return
	}
	for _, rec := range recs {
		if rec.Source != path {
			continue
		}
		if _, err := w.index.Deindex(ctx, rec.DocID); err != nil {
			log.FromCtx(ctx).Error().Err(err).Str("path", path).Msg("failed to remove document")
		}
	}
}

func (w *Watcher) owns(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	return err == nil && filepath.IsAbs(path) && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != w.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}
