package memory

import (
	"github.com/sandevgo/localrag/internal/core"
)

var (
	ErrDimensionMismatch = core.ErrDimensionMismatch
	ErrCorruptCollection = core.ErrCorruptCollection
)

type Item = core.MemoryItem

type Config struct {
	Collection string
	// FallbackPath is the JSON file used when no vector backend is usable.
	FallbackPath string
}

// Input describes an item to insert. ID, Metadata and Embedding are optional.
type Input struct {
	ID        string
	Text      string
	Metadata  core.Metadata
	Embedding []float32
}

type Query struct {
	Text      string
	Embedding []float32
	Limit     int
	Filter    core.Metadata
}

// Hit is a search result. Distance is cosine distance and only meaningful
// when HasDistance is set.
type Hit struct {
	Item        Item
	Distance    float64
	HasDistance bool
}

// Relevance is 1 - distance. ok is false when the backend did not rank the
// hit.
func (h Hit) Relevance() (float64, bool) {
	if !h.HasDistance {
		return 0, false
	}
	return 1 - h.Distance, true
}

type Stats struct {
	TotalItems        int
	UserMessages      int
	AssistantMessages int
	DocumentChunks    int
	OldestTimestamp   float64
	NewestTimestamp   float64
	Mode              string
}

type fallbackFile struct {
	Collection string `json:"collection"`
	Items      []Item `json:"items"`
}
