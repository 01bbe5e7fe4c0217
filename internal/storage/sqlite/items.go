package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sandevgo/localrag/internal/core"
	"github.com/sandevgo/localrag/pkg/log"
)

// ItemsRepo stores one collection of memory items and ranks them with
// sqlite-vec's vec_distance_cosine.
type ItemsRepo struct {
	db         *sql.DB
	collection string
}

func NewItemsRepo(db *sql.DB, collection string) *ItemsRepo {
	return &ItemsRepo{db: db, collection: collection}
}

func (r *ItemsRepo) Name() string {
	return "sqlite"
}

func (r *ItemsRepo) Ping(ctx context.Context) error {
	var version string
	if err := r.db.QueryRowContext(ctx, `SELECT vec_version()`).Scan(&version); err != nil {
		return fmt.Errorf("sqlite-vec is not available: %w", err)
	}
	log.FromCtx(ctx).Debug().Str("vec_version", version).Msg("sqlite-vec loaded")
	return nil
}

func (r *ItemsRepo) Dimension(ctx context.Context) (int, error) {
	var dim int
	err := r.db.QueryRowContext(ctx, `SELECT dimension FROM collections WHERE name = ?`, r.collection).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read collection dimension: %w", err)
	}
	return dim, nil
}

func (r *ItemsRepo) Put(ctx context.Context, items ...core.MemoryItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// 1. Make sure the collection row exists and carries the dimension
	_, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO collections (name, dimension) VALUES (?, 0)`, r.collection)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	_, err = tx.ExecContext(ctx, `UPDATE collections SET dimension = ? WHERE name = ? AND dimension = 0`,
		len(items[0].Embedding), r.collection)
	if err != nil {
		return fmt.Errorf("failed to set collection dimension: %w", err)
	}
	var dim int
	if err := tx.QueryRowContext(ctx, `SELECT dimension FROM collections WHERE name = ?`, r.collection).Scan(&dim); err != nil {
		return fmt.Errorf("failed to read collection dimension: %w", err)
	}

	// 2. Upsert items
	query := `INSERT INTO memory_items (collection, id, text, metadata, embedding) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET text = excluded.text, metadata = excluded.metadata, embedding = excluded.embedding`
	for _, item := range items {
		if len(item.Embedding) != dim {
			return fmt.Errorf("%w: item %s has %d values, collection has %d",
				core.ErrDimensionMismatch, item.ID, len(item.Embedding), dim)
		}
		md, err := json.Marshal(item.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		blob, err := serializeVector(item.Embedding)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, r.collection, item.ID, item.Text, string(md), blob); err != nil {
			return fmt.Errorf("failed to insert memory item: %w", err)
		}
	}

	return tx.Commit()
}

func (r *ItemsRepo) Query(ctx context.Context, embedding []float32, limit int, filter core.Metadata) ([]core.Match, error) {
	if limit <= 0 {
		return nil, nil
	}
	dim, err := r.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return nil, nil
	}
	if len(embedding) != dim {
		return nil, fmt.Errorf("%w: query has %d values, collection has %d", core.ErrDimensionMismatch, len(embedding), dim)
	}
	blob, err := serializeVector(embedding)
	if err != nil {
		return nil, err
	}

	where, args, ok := filterClause(filter)
	if !ok {
		return nil, nil
	}

	query := `SELECT id, text, metadata, embedding, vec_distance_cosine(embedding, ?) AS distance
		FROM memory_items WHERE collection = ?` + where + `
		ORDER BY distance ASC, seq DESC LIMIT ?`
	params := append([]any{blob, r.collection}, args...)
	params = append(params, limit)

	rows, err := r.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memory items: %w", err)
	}
	defer rows.Close()

	var matches []core.Match
	for rows.Next() {
		var (
			item     core.MemoryItem
			distance sql.NullFloat64
		)
		if err := scanItem(rows, &item, &distance); err != nil {
			return nil, err
		}
		matches = append(matches, core.Match{Item: item, Distance: distance.Float64})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	log.FromCtx(ctx).Debug().Int("count", len(matches)).Msg("vector query")
	return matches, nil
}

func (r *ItemsRepo) Get(ctx context.Context, id string) (core.MemoryItem, bool, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, text, metadata, embedding FROM memory_items WHERE collection = ? AND id = ?`, r.collection, id)

	var item core.MemoryItem
	err := scanItem(row, &item, nil)
	if errors.Is(err, sql.ErrNoRows) {
		return core.MemoryItem{}, false, nil
	}
	if err != nil {
		return core.MemoryItem{}, false, err
	}
	return item, true, nil
}

func (r *ItemsRepo) Delete(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	deleted := 0
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, `DELETE FROM memory_items WHERE collection = ? AND id = ?`, r.collection, id)
		if err != nil {
			return 0, fmt.Errorf("failed to delete memory item: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		deleted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return deleted, nil
}

func (r *ItemsRepo) List(ctx context.Context) ([]core.MemoryItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, text, metadata, embedding FROM memory_items WHERE collection = ? ORDER BY seq ASC`, r.collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list memory items: %w", err)
	}
	defer rows.Close()

	var items []core.MemoryItem
	for rows.Next() {
		var item core.MemoryItem
		if err := scanItem(rows, &item, nil); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *ItemsRepo) Reset(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_items WHERE collection = ?`, r.collection); err != nil {
		return fmt.Errorf("failed to clear memory items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE collections SET dimension = 0 WHERE name = ?`, r.collection); err != nil {
		return fmt.Errorf("failed to reset collection: %w", err)
	}
	return tx.Commit()
}

// Close is a no-op; the *sql.DB is shared and closed by its owner.
func (r *ItemsRepo) Close() error {
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner, item *core.MemoryItem, distance *sql.NullFloat64) error {
	var (
		md   string
		blob []byte
		err  error
	)
	if distance != nil {
		err = s.Scan(&item.ID, &item.Text, &md, &blob, distance)
	} else {
		err = s.Scan(&item.ID, &item.Text, &md, &blob)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("failed to scan memory item: %w", err)
	}

	if err := json.Unmarshal([]byte(md), &item.Metadata); err != nil {
		return fmt.Errorf("%w: item %s has invalid metadata: %v", core.ErrCorruptCollection, item.ID, err)
	}
	if item.Metadata == nil {
		item.Metadata = core.Metadata{}
	}
	if item.Embedding, err = deserializeVector(blob); err != nil {
		return fmt.Errorf("%w: item %s: %v", core.ErrCorruptCollection, item.ID, err)
	}
	return nil
}

// filterClause turns an equality filter into json_extract predicates. ok is
// false when the filter can never match.
func filterClause(filter core.Metadata) (string, []any, bool) {
	if len(filter) == 0 {
		return "", nil, true
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	var args []any
	for _, k := range keys {
		if strings.ContainsAny(k, `"\`) {
			return "", nil, false
		}
		path := `$."` + k + `"`
		switch v := filter[k].(type) {
		case string:
			sb.WriteString(` AND json_extract(metadata, ?) = ?`)
			args = append(args, path, v)
		case bool:
			b := 0
			if v {
				b = 1
			}
			sb.WriteString(` AND json_type(metadata, ?) IN ('true', 'false') AND json_extract(metadata, ?) = ?`)
			args = append(args, path, path, b)
		default:
			f, ok := core.Metadata{k: v}.Float(k)
			if !ok {
				return "", nil, false
			}
			sb.WriteString(` AND json_type(metadata, ?) IN ('integer', 'real') AND json_extract(metadata, ?) = ?`)
			args = append(args, path, path, f)
		}
	}
	return sb.String(), args, true
}
