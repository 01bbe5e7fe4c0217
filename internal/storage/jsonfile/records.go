package jsonfile

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sandevgo/localrag/internal/core"
)

// RecordsRepo keeps index records in a single JSON file. It is used when the
// sqlite database cannot be opened.
type RecordsRepo struct {
	path string
	mu   sync.Mutex
}

func NewRecordsRepo(path string) *RecordsRepo {
	return &RecordsRepo{path: path}
}

func (r *RecordsRepo) load() (map[string]core.IndexRecord, error) {
	records := make(map[string]core.IndexRecord)
	if _, err := Load(r.path, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCorruptCollection, err)
	}
	if records == nil {
		records = make(map[string]core.IndexRecord)
	}
	return records, nil
}

func (r *RecordsRepo) SaveRecord(ctx context.Context, rec core.IndexRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return err
	}
	records[rec.DocID] = rec
	return Save(r.path, records)
}

func (r *RecordsRepo) GetRecord(ctx context.Context, docID string) (core.IndexRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return core.IndexRecord{}, false, err
	}
	rec, ok := records[docID]
	return rec, ok, nil
}

func (r *RecordsRepo) DeleteRecord(ctx context.Context, docID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return false, err
	}
	if _, ok := records[docID]; !ok {
		return false, nil
	}
	delete(records, docID)
	return true, Save(r.path, records)
}

func (r *RecordsRepo) ListRecords(ctx context.Context) ([]core.IndexRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return nil, err
	}
	list := make([]core.IndexRecord, 0, len(records))
	for _, rec := range records {
		list = append(list, rec)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].IndexedAt.Equal(list[j].IndexedAt) {
			return list[i].DocID < list[j].DocID
		}
		return list[i].IndexedAt.Before(list[j].IndexedAt)
	})
	return list, nil
}

func (r *RecordsRepo) ResetRecords(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Save(r.path, map[string]core.IndexRecord{})
}
