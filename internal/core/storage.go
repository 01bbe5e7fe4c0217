package core

import (
	"context"
	"time"
)

// VectorIndex is a persistent similarity index for one collection.
type VectorIndex interface {
	Name() string
	Ping(ctx context.Context) error
	// Dimension returns the embedding dimension of stored items, 0 when empty.
	Dimension(ctx context.Context) (int, error)
	Put(ctx context.Context, items ...MemoryItem) error
	Query(ctx context.Context, embedding []float32, limit int, filter Metadata) ([]Match, error)
	Get(ctx context.Context, id string) (MemoryItem, bool, error)
	Delete(ctx context.Context, ids ...string) (int, error)
	List(ctx context.Context) ([]MemoryItem, error)
	Reset(ctx context.Context) error
	Close() error
}

type IndexRecord struct {
	DocID       string    `json:"doc_id"`
	ChunkIDs    []string  `json:"chunk_ids"`
	ChunkCount  int       `json:"chunk_count"`
	IndexedAt   time.Time `json:"indexed_at"`
	Source      string    `json:"source,omitempty"`
	ContentHash string    `json:"content_hash,omitempty"`
}

type IndexRecordRepository interface {
	SaveRecord(ctx context.Context, rec IndexRecord) error
	GetRecord(ctx context.Context, docID string) (IndexRecord, bool, error)
	DeleteRecord(ctx context.Context, docID string) (bool, error)
	ListRecords(ctx context.Context) ([]IndexRecord, error)
	ResetRecords(ctx context.Context) error
}
