package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/localrag/internal/core"
)

// RecordsRepo keeps the document index records of one collection.
type RecordsRepo struct {
	db         *sql.DB
	collection string
}

func NewRecordsRepo(db *sql.DB, collection string) *RecordsRepo {
	return &RecordsRepo{db: db, collection: collection}
}

func (r *RecordsRepo) SaveRecord(ctx context.Context, rec core.IndexRecord) error {
	ids, err := json.Marshal(rec.ChunkIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal chunk ids: %w", err)
	}

	query := `INSERT INTO index_records (collection, doc_id, source, content_hash, chunk_ids, chunk_count, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, doc_id) DO UPDATE SET
			source = excluded.source,
			content_hash = excluded.content_hash,
			chunk_ids = excluded.chunk_ids,
			chunk_count = excluded.chunk_count,
			indexed_at = excluded.indexed_at`

	_, err = r.db.ExecContext(ctx, query,
		r.collection, rec.DocID, rec.Source, rec.ContentHash, string(ids), rec.ChunkCount,
		rec.IndexedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save index record: %w", err)
	}
	return nil
}

func (r *RecordsRepo) GetRecord(ctx context.Context, docID string) (core.IndexRecord, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT doc_id, source, content_hash, chunk_ids, chunk_count, indexed_at
		FROM index_records WHERE collection = ? AND doc_id = ?`, r.collection, docID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.IndexRecord{}, false, nil
	}
	if err != nil {
		return core.IndexRecord{}, false, err
	}
	return rec, true, nil
}

func (r *RecordsRepo) DeleteRecord(ctx context.Context, docID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM index_records WHERE collection = ? AND doc_id = ?`, r.collection, docID)
	if err != nil {
		return false, fmt.Errorf("failed to delete index record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RecordsRepo) ListRecords(ctx context.Context) ([]core.IndexRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT doc_id, source, content_hash, chunk_ids, chunk_count, indexed_at
		FROM index_records WHERE collection = ? ORDER BY indexed_at ASC, doc_id ASC`, r.collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list index records: %w", err)
	}
	defer rows.Close()

	var records []core.IndexRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *RecordsRepo) ResetRecords(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM index_records WHERE collection = ?`, r.collection); err != nil {
		return fmt.Errorf("failed to reset index records: %w", err)
	}
	return nil
}

func scanRecord(s scanner) (core.IndexRecord, error) {
	var (
		rec       core.IndexRecord
		ids       string
		indexedAt string
	)
	if err := s.Scan(&rec.DocID, &rec.Source, &rec.ContentHash, &ids, &rec.ChunkCount, &indexedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("failed to scan index record: %w", err)
	}
	if err := json.Unmarshal([]byte(ids), &rec.ChunkIDs); err != nil {
		return rec, fmt.Errorf("%w: record %s has invalid chunk ids: %v", core.ErrCorruptCollection, rec.DocID, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, indexedAt)
	if err != nil {
		return rec, fmt.Errorf("%w: record %s has invalid timestamp: %v", core.ErrCorruptCollection, rec.DocID, err)
	}
	rec.IndexedAt = ts
	return rec, nil
}
