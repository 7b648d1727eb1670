// Package knowledge implements the chunk store: ingestion of embedded text
// chunks into pgvector and similarity search over them with metadata
// filtering.
package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/studylens/studylens/internal/log"
)

const (
	// DefaultBatchSize is the number of chunks inserted per round trip.
	DefaultBatchSize = 10

	// insertAttempts is how many times a failing batch insert is retried
	// before the whole ingestion is abandoned.
	insertAttempts = 3

	// insertRetryDelay separates insert attempts.
	insertRetryDelay = 500 * time.Millisecond
)

// ErrEmbedding wraps failures to produce a query or chunk embedding.
var ErrEmbedding = errors.New("embedding failed")

// Embedder produces a vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChunkRow is one row ready for insertion.
type ChunkRow struct {
	ID        uuid.UUID
	Content   string
	Embedding []float32
	Metadata  []byte
}

// SearchParams select rows by vector proximity with optional metadata
// predicates. Empty string fields mean "no predicate".
type SearchParams struct {
	Embedding    []float32
	DocumentUUID string
	FileType     string
	Limit        int32
}

// ScoredRow is one row returned from a similarity query. Distance is the
// cosine distance to the query vector, smaller is closer.
type ScoredRow struct {
	Content  string
	Metadata []byte
	Distance float64
}

// DeleteParams select rows for deletion by metadata predicates.
type DeleteParams struct {
	DocumentUUID string
	FileType     string
}

// Querier is the storage capability the store needs. Satisfied by PGQuerier
// in production and by hand mocks in tests.
type Querier interface {
	InsertChunks(ctx context.Context, rows []ChunkRow) error
	SearchChunks(ctx context.Context, params SearchParams) ([]ScoredRow, error)
	DeleteChunks(ctx context.Context, params DeleteParams) (int64, error)
	CountChunks(ctx context.Context) (int64, error)
	CountDocuments(ctx context.Context) (int64, error)
	CountChunksForDocument(ctx context.Context, documentUUID string) (int64, error)
}

// Config configures a Store.
type Config struct {
	Querier  Querier
	Embedder Embedder
	Logger   log.Logger

	// BatchSize overrides DefaultBatchSize when positive.
	BatchSize int
}

func (c *Config) validate() error {
	if c.Querier == nil {
		return errors.New("querier is required")
	}
	if c.Embedder == nil {
		return errors.New("embedder is required")
	}
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	return nil
}

// Store manages the chunk corpus.
type Store struct {
	q         Querier
	embedder  Embedder
	logger    log.Logger
	batchSize int
}

// New creates a Store.
func New(cfg Config) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("knowledge store config: %w", err)
	}
	return &Store{
		q:         cfg.Querier,
		embedder:  cfg.Embedder,
		logger:    cfg.Logger,
		batchSize: cfg.BatchSize,
	}, nil
}

// AddChunks embeds and inserts chunks in batches. Blank chunks are skipped.
// Returns false with a nil error when nothing remained to insert; an error
// from any batch abandons the rest of the ingestion.
func (s *Store) AddChunks(ctx context.Context, chunks []Chunk) (bool, error) {
	kept := chunks[:0:0]
	for _, c := range chunks {
		if strings.TrimSpace(c.Content) == "" {
			continue
		}
		kept = append(kept, c)
	}
	if len(kept) == 0 {
		s.logger.Warn("no non-empty chunks to add")
		return false, nil
	}

	for start := 0; start < len(kept); start += s.batchSize {
		end := min(start+s.batchSize, len(kept))
		rows, err := s.embedBatch(ctx, kept[start:end])
		if err != nil {
			return false, err
		}
		if err := s.insertWithRetry(ctx, rows); err != nil {
			return false, fmt.Errorf("insert batch at offset %d: %w", start, err)
		}
		s.logger.Debug("inserted chunk batch", "offset", start, "size", len(rows))
	}
	return true, nil
}

func (s *Store) embedBatch(ctx context.Context, chunks []Chunk) ([]ChunkRow, error) {
	rows := make([]ChunkRow, 0, len(chunks))
	for _, c := range chunks {
		vec, err := s.embedder.Embed(ctx, c.Content)
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %d of %q: %v", ErrEmbedding, c.Metadata.ChunkIndex, c.Metadata.Filename, err)
		}
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal chunk metadata: %w", err)
		}
		rows = append(rows, ChunkRow{
			ID:        uuid.New(),
			Content:   c.Content,
			Embedding: vec,
			Metadata:  meta,
		})
	}
	return rows, nil
}

func (s *Store) insertWithRetry(ctx context.Context, rows []ChunkRow) error {
	var lastErr error
	for attempt := 1; attempt <= insertAttempts; attempt++ {
		lastErr = s.q.InsertChunks(ctx, rows)
		if lastErr == nil {
			return nil
		}
		s.logger.Warn("chunk insert failed",
			"attempt", attempt, "max_attempts", insertAttempts, "error", lastErr)
		if attempt == insertAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(insertRetryDelay):
		}
	}
	return lastErr
}

// Search returns the k most similar chunks to query, optionally restricted
// by filter. An empty corpus yields an empty result, not an error. When the
// filter names multiple documents the search runs once per document and
// merges by distance, so each named document competes for the full k.
func (s *Store) Search(ctx context.Context, query string, k int, filter Filter) ([]SearchResult, error) {
	if filter.DocumentUUIDs != nil && len(filter.DocumentUUIDs) == 0 {
		return []SearchResult{}, nil
	}

	total, err := s.q.CountChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	if total == 0 {
		return []SearchResult{}, nil
	}
	if int64(k) > total {
		k = int(total)
	}
	if k <= 0 {
		return []SearchResult{}, nil
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrEmbedding, err)
	}

	var rows []ScoredRow
	if len(filter.DocumentUUIDs) > 0 {
		rows, err = s.searchInDocuments(ctx, embedding, filter, k)
	} else {
		rows, err = s.q.SearchChunks(ctx, SearchParams{
			Embedding: embedding,
			FileType:  filter.FileType,
			Limit:     int32(k),
		})
	}
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	results := make([]SearchResult, 0, len(rows))
	for _, row := range rows {
		var meta Metadata
		if err := json.Unmarshal(row.Metadata, &meta); err != nil {
			s.logger.Warn("skipping chunk with malformed metadata", "error", err)
			continue
		}
		results = append(results, SearchResult{
			Content:  row.Content,
			Metadata: meta,
			// Cosine distance mapped into (0, 1], monotone in similarity.
			Score: 1.0 / (1.0 + row.Distance),
		})
	}
	return results, nil
}

// searchInDocuments runs one similarity query per named document and merges
// the results, closest first, truncated to k.
func (s *Store) searchInDocuments(ctx context.Context, embedding []float32, filter Filter, k int) ([]ScoredRow, error) {
	var merged []ScoredRow
	for _, docUUID := range filter.DocumentUUIDs {
		rows, err := s.q.SearchChunks(ctx, SearchParams{
			Embedding:    embedding,
			DocumentUUID: docUUID,
			FileType:     filter.FileType,
			Limit:        int32(k),
		})
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", docUUID, err)
		}
		merged = append(merged, rows...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Distance < merged[j].Distance
	})
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}

// DeleteByMetadata removes every chunk matching the filter and returns how
// many rows were deleted. Deleting with a filter that matches nothing is not
// an error.
func (s *Store) DeleteByMetadata(ctx context.Context, filter Filter) (int64, error) {
	if filter.empty() {
		return 0, errors.New("refusing to delete with an empty filter")
	}

	var deleted int64
	if len(filter.DocumentUUIDs) == 0 {
		n, err := s.q.DeleteChunks(ctx, DeleteParams{FileType: filter.FileType})
		if err != nil {
			return deleted, fmt.Errorf("delete chunks: %w", err)
		}
		return n, nil
	}

	for _, docUUID := range filter.DocumentUUIDs {
		n, err := s.q.DeleteChunks(ctx, DeleteParams{
			DocumentUUID: docUUID,
			FileType:     filter.FileType,
		})
		if err != nil {
			return deleted, fmt.Errorf("delete chunks of %s: %w", docUUID, err)
		}
		deleted += n
	}
	return deleted, nil
}

// DocumentCount returns the number of distinct documents in the corpus.
// Returns 0 on error so status surfaces degrade instead of failing.
func (s *Store) DocumentCount(ctx context.Context) int64 {
	n, err := s.q.CountDocuments(ctx)
	if err != nil {
		s.logger.Warn("count documents failed", "error", err)
		return 0
	}
	return n
}

// ChunkCountForDocument returns the number of chunks stored for one
// document, 0 on error.
func (s *Store) ChunkCountForDocument(ctx context.Context, documentUUID string) int64 {
	n, err := s.q.CountChunksForDocument(ctx, documentUUID)
	if err != nil {
		s.logger.Warn("count chunks for document failed", "document_uuid", documentUUID, "error", err)
		return 0
	}
	return n
}
