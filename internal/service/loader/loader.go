package loader

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/inbucket/html2text"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/sandevgo/localrag/internal/core"
	"github.com/sandevgo/localrag/pkg/log"
)

const (
	DefaultMaxFileSize = 50 << 20

	SourceText = "text"
)

var fileTypes = map[string]string{
	".txt":      "txt",
	".text":     "txt",
	".md":       "md",
	".markdown": "md",
	".html":     "html",
	".htm":      "html",
}

// Supported reports whether path has an extension the loader can read.
func Supported(path string) bool {
	_, ok := fileTypes[strings.ToLower(filepath.Ext(path))]
	return ok
}

type Loader struct {
	maxSize int64
	now     func() time.Time

	mu      sync.Mutex
	entropy io.Reader
}

func New() *Loader {
	return &Loader{
		maxSize: DefaultMaxFileSize,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (l *Loader) newID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(l.now()), l.entropy).String()
}

func (l *Loader) timestamp() float64 {
	return float64(l.now().UnixNano()) / 1e9
}

// LoadFile reads a text-like file into a Document. ok is false for missing,
// oversized, unsupported or empty files.
func (l *Loader) LoadFile(ctx context.Context, path string) (core.Document, bool, error) {
	logger := log.FromCtx(ctx).With().Str("path", path).Logger()

	abs, err := filepath.Abs(path)
	if err != nil {
		return core.Document{}, false, fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		logger.Warn().Msg("document not found")
		return core.Document{}, false, nil
	}
	if err != nil {
		return core.Document{}, false, fmt.Errorf("failed to stat document: %w", err)
	}
	if info.IsDir() {
		logger.Warn().Msg("document is a directory")
		return core.Document{}, false, nil
	}
	if info.Size() > l.maxSize {
		logger.Warn().
			Str("size", fmt.Sprintf("%.2f MB", float64(info.Size())/(1<<20))).
			Str("max", fmt.Sprintf("%d MB", l.maxSize>>20)).
			Msg("document too large")
		return core.Document{}, false, nil
	}

	if !Supported(abs) {
		logger.Warn().Str("ext", filepath.Ext(abs)).Msg("unsupported document type")
		return core.Document{}, false, nil
	}

	raw, err := os.ReadFile(abs)
	if err != nil {
		return core.Document{}, false, fmt.Errorf("failed to read document: %w", err)
	}
	return l.decode(logger, filepath.Base(abs), abs, raw)
}

// FromBytes builds a Document from file content received over a transport.
// name selects the file type; source identifies the upload so a second copy
// replaces the first when indexed with IndexSource.
func (l *Loader) FromBytes(ctx context.Context, name, source string, raw []byte) (core.Document, bool, error) {
	logger := log.FromCtx(ctx).With().Str("name", name).Logger()
	if int64(len(raw)) > l.maxSize {
		logger.Warn().Int("size", len(raw)).Msg("upload too large")
		return core.Document{}, false, nil
	}
	return l.decode(logger, name, source, raw)
}

func (l *Loader) decode(logger zerolog.Logger, name, source string, raw []byte) (core.Document, bool, error) {
	ext := strings.ToLower(filepath.Ext(name))
	fileType, ok := fileTypes[ext]
	if !ok {
		logger.Warn().Str("ext", ext).Msg("unsupported document type")
		return core.Document{}, false, nil
	}

	text := strings.ToValidUTF8(string(raw), "�")
	if fileType == "html" {
		var err error
		text, err = html2text.FromString(text, html2text.Options{PrettyTables: true})
		if err != nil {
			return core.Document{}, false, fmt.Errorf("failed to convert html: %w", err)
		}
	}
	if strings.TrimSpace(text) == "" {
		logger.Warn().Msg("document has no text")
		return core.Document{}, false, nil
	}

	doc := core.Document{
		ID:   l.newID(),
		Text: text,
		Metadata: core.Metadata{
			core.MetaFilename:  name,
			core.MetaFilePath:  source,
			core.MetaFileSize:  int64(len(raw)),
			core.MetaFileType:  fileType,
			core.MetaTimestamp: l.timestamp(),
			core.MetaSource:    source,
		},
	}
	logger.Debug().Str("doc_id", doc.ID).Int("size", len(raw)).Msg("document loaded")
	return doc, true, nil
}

// FromText wraps raw text as a Document. ok is false for blank text.
func (l *Loader) FromText(text, name string) (core.Document, bool) {
	if strings.TrimSpace(text) == "" {
		return core.Document{}, false
	}
	if name == "" {
		name = "text input"
	}
	return core.Document{
		ID:   l.newID(),
		Text: text,
		Metadata: core.Metadata{
			core.MetaFilename:  name,
			core.MetaFileSize:  len(text),
			core.MetaFileType:  SourceText,
			core.MetaTimestamp: l.timestamp(),
			core.MetaSource:    SourceText,
		},
	}, true
}
