package core

import (
	"errors"
	"fmt"
	"strconv"
)

// Reserved metadata keys.
const (
	MetaRole       = "role"
	MetaTimestamp  = "timestamp"
	MetaType       = "type"
	MetaDocID      = "doc_id"
	MetaChunkID    = "chunk_id"
	MetaChunkIndex = "chunk_index"
	MetaFilename   = "filename"
	MetaSource     = "source"
	MetaFilePath   = "file_path"
	MetaFileSize   = "file_size"
	MetaFileType   = "file_type"

	TypeDocumentChunk = "document_chunk"
)

var (
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrCorruptCollection = errors.New("corrupt collection")
)

// Metadata holds JSON scalar values (string, number, bool) or string lists.
type Metadata map[string]any

func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		if list, ok := v.([]string); ok {
			v = append([]string(nil), list...)
		}
		out[k] = v
	}
	return out
}

func (m Metadata) String(key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return Stringify(v)
	}
}

func (m Metadata) Float(key string) (float64, bool) {
	return toFloat(m[key])
}

func (m Metadata) Int(key string) (int, bool) {
	f, ok := toFloat(m[key])
	return int(f), ok
}

func (m Metadata) Role() string {
	return m.String(MetaRole)
}

func (m Metadata) Timestamp() float64 {
	ts, _ := m.Float(MetaTimestamp)
	return ts
}

func (m Metadata) IsConversation() bool {
	role := m.Role()
	return role == RoleUser || role == RoleAssistant
}

func (m Metadata) IsDocumentChunk() bool {
	return m.String(MetaType) == TypeDocumentChunk
}

// Matches reports whether every key of filter is present in m with an
// equal value.
func (m Metadata) Matches(filter Metadata) bool {
	for k, want := range filter {
		got, ok := m[k]
		if !ok || !ValuesEqual(got, want) {
			return false
		}
	}
	return true
}

// ValuesEqual compares metadata values. Numbers compare by value, so 1 and
// 1.0 are equal.
func ValuesEqual(a, b any) bool {
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum || bNum {
		return aNum && bNum && fa == fb
	}
	return Stringify(a) == Stringify(b)
}

// Stringify renders a metadata value in canonical form.
func Stringify(v any) string {
	if f, ok := toFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

type MemoryItem struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
	Metadata  Metadata  `json:"metadata"`
}

// Match is a ranked vector index result. Distance is cosine distance.
type Match struct {
	Item     MemoryItem
	Distance float64
}

// Document is a loaded text ready for indexing.
type Document struct {
	ID       string
	Text     string
	Metadata Metadata
}
