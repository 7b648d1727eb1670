package knowledge

import "time"

// Metadata describes the provenance of one chunk. It is stored as a jsonb
// column so new fields can be added without a schema migration; unknown keys
// in stored rows are ignored on read.
type Metadata struct {
	DocumentID   int64     `json:"document_id"`
	DocumentUUID string    `json:"document_uuid"`
	Filename     string    `json:"filename"`
	FileType     string    `json:"file_type"`
	ChunkIndex   int       `json:"chunk_index"`
	TotalChunks  int       `json:"total_chunks"`
	ProcessedAt  time.Time `json:"processed_at"`
}

// Chunk is one unit of ingested text awaiting indexing.
type Chunk struct {
	Content  string
	Metadata Metadata
}

// SearchResult is one retrieved chunk with its similarity score.
// Score is in (0, 1], higher is more similar.
type SearchResult struct {
	Content  string
	Metadata Metadata
	Score    float64
}

// Filter restricts a search to a subset of the corpus. A nil DocumentUUIDs
// slice means "no document restriction"; an empty non-nil slice matches
// nothing. FileType filters on the stored file_type metadata key.
type Filter struct {
	DocumentUUIDs []string
	FileType      string
}

// empty reports whether the filter restricts nothing.
func (f Filter) empty() bool {
	return f.DocumentUUIDs == nil && f.FileType == ""
}
