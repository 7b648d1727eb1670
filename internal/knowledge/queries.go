package knowledge

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PGQuerier implements Querier on a pgx connection pool.
type PGQuerier struct {
	pool *pgxpool.Pool
}

var _ Querier = (*PGQuerier)(nil)

// NewPGQuerier wraps a pool.
func NewPGQuerier(pool *pgxpool.Pool) *PGQuerier {
	return &PGQuerier{pool: pool}
}

const insertChunkSQL = `
INSERT INTO chunks (id, content, embedding, metadata)
VALUES ($1, $2, $3, $4)`

// InsertChunks writes all rows in one pipelined batch. Any failed statement
// fails the whole batch.
func (q *PGQuerier) InsertChunks(ctx context.Context, rows []ChunkRow) error {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(insertChunkSQL, row.ID, row.Content, pgvector.NewVector(row.Embedding), row.Metadata)
	}

	results := q.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("exec insert: %w", err)
		}
	}
	return nil
}

// SearchChunks runs a cosine-distance similarity query with optional
// metadata predicates, closest rows first.
func (q *PGQuerier) SearchChunks(ctx context.Context, params SearchParams) ([]ScoredRow, error) {
	sql := `SELECT content, metadata, embedding <=> $1 AS distance FROM chunks`
	args := []any{pgvector.NewVector(params.Embedding)}

	where := ""
	if params.DocumentUUID != "" {
		args = append(args, params.DocumentUUID)
		where = ` WHERE metadata->>'document_uuid' = $` + strconv.Itoa(len(args))
	}
	if params.FileType != "" {
		args = append(args, params.FileType)
		if where == "" {
			where = ` WHERE `
		} else {
			where += ` AND `
		}
		where += `metadata->>'file_type' = $` + strconv.Itoa(len(args))
	}

	args = append(args, params.Limit)
	sql += where + ` ORDER BY distance LIMIT $` + strconv.Itoa(len(args))

	pgRows, err := q.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer pgRows.Close()

	var rows []ScoredRow
	for pgRows.Next() {
		var row ScoredRow
		if err := pgRows.Scan(&row.Content, &row.Metadata, &row.Distance); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		rows = append(rows, row)
	}
	if err := pgRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk rows: %w", err)
	}
	return rows, nil
}

// DeleteChunks removes rows matching the metadata predicates and reports the
// number deleted.
func (q *PGQuerier) DeleteChunks(ctx context.Context, params DeleteParams) (int64, error) {
	sql := `DELETE FROM chunks`
	var args []any

	where := ""
	if params.DocumentUUID != "" {
		args = append(args, params.DocumentUUID)
		where = ` WHERE metadata->>'document_uuid' = $` + strconv.Itoa(len(args))
	}
	if params.FileType != "" {
		args = append(args, params.FileType)
		if where == "" {
			where = ` WHERE `
		} else {
			where += ` AND `
		}
		where += `metadata->>'file_type' = $` + strconv.Itoa(len(args))
	}
	if where == "" {
		return 0, fmt.Errorf("delete requires at least one predicate")
	}

	tag, err := q.pool.Exec(ctx, sql+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountChunks returns the total number of stored chunks.
func (q *PGQuerier) CountChunks(ctx context.Context) (int64, error) {
	var n int64
	if err := q.pool.QueryRow(ctx, `SELECT count(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// CountDocuments returns the number of distinct documents with stored
// chunks.
func (q *PGQuerier) CountDocuments(ctx context.Context) (int64, error) {
	var n int64
	err := q.pool.QueryRow(ctx,
		`SELECT count(DISTINCT metadata->>'document_uuid') FROM chunks`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// CountChunksForDocument returns how many chunks one document has.
func (q *PGQuerier) CountChunksForDocument(ctx context.Context, documentUUID string) (int64, error) {
	var n int64
	err := q.pool.QueryRow(ctx,
		`SELECT count(*) FROM chunks WHERE metadata->>'document_uuid' = $1`, documentUUID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count chunks for document: %w", err)
	}
	return n, nil
}
