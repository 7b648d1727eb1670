package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type stubEmbedder struct {
	vec  []float32
	err  error
	seen []string
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.seen = append(e.seen, text)
	if e.err != nil {
		return nil, e.err
	}
	return e.vec, nil
}

// mockQuerier scripts per-method behavior and records calls.
type mockQuerier struct {
	insertCalls   [][]ChunkRow
	insertErrs    []error // consumed per call; nil entry = success
	searchCalls   []SearchParams
	searchResults map[string][]ScoredRow // keyed by DocumentUUID ("" for unfiltered)
	searchErr     error
	deleteCalls   []DeleteParams
	deleteN       int64
	deleteErr     error
	totalChunks   int64
	countErr      error
}

func (m *mockQuerier) InsertChunks(_ context.Context, rows []ChunkRow) error {
	m.insertCalls = append(m.insertCalls, rows)
	if len(m.insertErrs) > 0 {
		err := m.insertErrs[0]
		m.insertErrs = m.insertErrs[1:]
		return err
	}
	return nil
}

func (m *mockQuerier) SearchChunks(_ context.Context, params SearchParams) ([]ScoredRow, error) {
	m.searchCalls = append(m.searchCalls, params)
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.searchResults[params.DocumentUUID], nil
}

func (m *mockQuerier) DeleteChunks(_ context.Context, params DeleteParams) (int64, error) {
	m.deleteCalls = append(m.deleteCalls, params)
	return m.deleteN, m.deleteErr
}

func (m *mockQuerier) CountChunks(context.Context) (int64, error) {
	return m.totalChunks, m.countErr
}

func (m *mockQuerier) CountDocuments(context.Context) (int64, error) {
	return m.totalChunks, m.countErr
}

func (m *mockQuerier) CountChunksForDocument(context.Context, string) (int64, error) {
	return m.totalChunks, m.countErr
}

func newTestStore(t *testing.T, q Querier, e Embedder) *Store {
	t.Helper()
	s, err := New(Config{Querier: q, Embedder: e})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func metaJSON(t *testing.T, m Metadata) []byte {
	t.Helper()
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal metadata: %v", err)
	}
	return b
}

func TestAddChunksSkipsBlanksAndBatches(t *testing.T) {
	q := &mockQuerier{}
	e := &stubEmbedder{vec: []float32{0.1, 0.2}}
	s := newTestStore(t, q, e)

	chunks := make([]Chunk, 0, 25)
	for i := 0; i < 25; i++ {
		chunks = append(chunks, Chunk{
			Content:  fmt.Sprintf("chunk %d", i),
			Metadata: Metadata{ChunkIndex: i},
		})
	}
	chunks = append(chunks, Chunk{Content: ""}, Chunk{Content: "   \n\t  "})

	added, err := s.AddChunks(context.Background(), chunks)
	if err != nil {
		t.Fatalf("AddChunks: %v", err)
	}
	if !added {
		t.Fatal("AddChunks = false, want true")
	}
	if got, want := len(q.insertCalls), 3; got != want {
		t.Fatalf("insert batches = %d, want %d", got, want)
	}
	if got := len(q.insertCalls[2]); got != 5 {
		t.Errorf("last batch size = %d, want 5", got)
	}
	if got := len(e.seen); got != 25 {
		t.Errorf("embedded %d chunks, want 25 (blank and whitespace-only skipped)", got)
	}
	for _, text := range e.seen {
		if strings.TrimSpace(text) == "" {
			t.Errorf("embedded whitespace-only chunk %q", text)
		}
	}
}

func TestAddChunksAllBlank(t *testing.T) {
	q := &mockQuerier{}
	s := newTestStore(t, q, &stubEmbedder{vec: []float32{1}})

	added, err := s.AddChunks(context.Background(), []Chunk{{Content: ""}, {Content: "   \n\t  "}})
	if err != nil {
		t.Fatalf("AddChunks: %v", err)
	}
	if added {
		t.Error("AddChunks = true, want false when only blank and whitespace chunks remain")
	}
	if len(q.insertCalls) != 0 {
		t.Errorf("insert called %d times, want 0", len(q.insertCalls))
	}
}

func TestAddChunksRetriesInsert(t *testing.T) {
	transient := errors.New("connection reset")
	q := &mockQuerier{insertErrs: []error{transient, transient, nil}}
	s := newTestStore(t, q, &stubEmbedder{vec: []float32{1}})

	added, err := s.AddChunks(context.Background(), []Chunk{{Content: "x"}})
	if err != nil {
		t.Fatalf("AddChunks: %v", err)
	}
	if !added {
		t.Fatal("AddChunks = false, want true after retry succeeds")
	}
	if got := len(q.insertCalls); got != 3 {
		t.Errorf("insert attempts = %d, want 3", got)
	}
}

func TestAddChunksGivesUpAfterMaxAttempts(t *testing.T) {
	boom := errors.New("disk full")
	q := &mockQuerier{insertErrs: []error{boom, boom, boom}}
	s := newTestStore(t, q, &stubEmbedder{vec: []float32{1}})

	_, err := s.AddChunks(context.Background(), []Chunk{{Content: "x"}})
	if !errors.Is(err, boom) {
		t.Fatalf("AddChunks error = %v, want wrapped %v", err, boom)
	}
	if got := len(q.insertCalls); got != 3 {
		t.Errorf("insert attempts = %d, want exactly 3", got)
	}
}

func TestSearchEmptyCorpus(t *testing.T) {
	q := &mockQuerier{totalChunks: 0}
	e := &stubEmbedder{vec: []float32{1}}
	s := newTestStore(t, q, e)

	results, err := s.Search(context.Background(), "anything", 5, Filter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %d, want 0", len(results))
	}
	if len(e.seen) != 0 {
		t.Error("query was embedded despite empty corpus")
	}
}

func TestSearchClampsKToCorpusSize(t *testing.T) {
	q := &mockQuerier{totalChunks: 2, searchResults: map[string][]ScoredRow{}}
	s := newTestStore(t, q, &stubEmbedder{vec: []float32{1}})

	if _, err := s.Search(context.Background(), "q", 10, Filter{}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got := q.searchCalls[0].Limit; got != 2 {
		t.Errorf("limit = %d, want clamped to 2", got)
	}
}

func TestSearchScoresFromDistance(t *testing.T) {
	meta := Metadata{DocumentUUID: "d1", Filename: "notes.pdf", FileType: "pdf"}
	q := &mockQuerier{
		totalChunks: 10,
		searchResults: map[string][]ScoredRow{
			"": {
				{Content: "close", Metadata: metaJSON(t, meta), Distance: 0.0},
				{Content: "far", Metadata: metaJSON(t, meta), Distance: 1.0},
			},
		},
	}
	s := newTestStore(t, q, &stubEmbedder{vec: []float32{1}})

	results, err := s.Search(context.Background(), "q", 2, Filter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Score != 1.0 {
		t.Errorf("score at distance 0 = %v, want 1.0", results[0].Score)
	}
	if results[1].Score != 0.5 {
		t.Errorf("score at distance 1 = %v, want 0.5", results[1].Score)
	}
	if results[0].Metadata.Filename != "notes.pdf" {
		t.Errorf("metadata filename = %q, want notes.pdf", results[0].Metadata.Filename)
	}
}

func TestSearchInDocumentSetMergesByDistance(t *testing.T) {
	m1 := metaJSON(t, Metadata{DocumentUUID: "d1"})
	m2 := metaJSON(t, Metadata{DocumentUUID: "d2"})
	q := &mockQuerier{
		totalChunks: 100,
		searchResults: map[string][]ScoredRow{
			"d1": {
				{Content: "a", Metadata: m1, Distance: 0.3},
				{Content: "b", Metadata: m1, Distance: 0.9},
			},
			"d2": {
				{Content: "c", Metadata: m2, Distance: 0.1},
				{Content: "d", Metadata: m2, Distance: 0.5},
			},
		},
	}
	s := newTestStore(t, q, &stubEmbedder{vec: []float32{1}})

	results, err := s.Search(context.Background(), "q", 3, Filter{DocumentUUIDs: []string{"d1", "d2"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3 (merged and truncated)", len(results))
	}
	want := []string{"c", "a", "d"}
	for i, w := range want {
		if results[i].Content != w {
			t.Errorf("results[%d] = %q, want %q", i, results[i].Content, w)
		}
	}
	// Each document was queried individually with the full limit.
	if got := len(q.searchCalls); got != 2 {
		t.Fatalf("search calls = %d, want 2", got)
	}
	for _, call := range q.searchCalls {
		if call.Limit != 3 {
			t.Errorf("per-document limit = %d, want 3", call.Limit)
		}
	}
}

func TestSearchEmptyDocumentSetMatchesNothing(t *testing.T) {
	q := &mockQuerier{totalChunks: 10}
	s := newTestStore(t, q, &stubEmbedder{vec: []float32{1}})

	results, err := s.Search(context.Background(), "q", 5, Filter{DocumentUUIDs: []string{}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %d, want 0 for empty document set", len(results))
	}
	if len(q.searchCalls) != 0 {
		t.Error("querier was searched despite empty document set")
	}
}

func TestSearchEmbeddingFailure(t *testing.T) {
	q := &mockQuerier{totalChunks: 5}
	s := newTestStore(t, q, &stubEmbedder{err: errors.New("quota exceeded")})

	_, err := s.Search(context.Background(), "q", 5, Filter{})
	if !errors.Is(err, ErrEmbedding) {
		t.Fatalf("Search error = %v, want ErrEmbedding", err)
	}
}

func TestDeleteByMetadata(t *testing.T) {
	q := &mockQuerier{deleteN: 4}
	s := newTestStore(t, q, &stubEmbedder{vec: []float32{1}})

	n, err := s.DeleteByMetadata(context.Background(), Filter{DocumentUUIDs: []string{"d1", "d2"}})
	if err != nil {
		t.Fatalf("DeleteByMetadata: %v", err)
	}
	if n != 8 {
		t.Errorf("deleted = %d, want 8", n)
	}
	if got := len(q.deleteCalls); got != 2 {
		t.Errorf("delete calls = %d, want 2", got)
	}
}

func TestDeleteByMetadataRejectsEmptyFilter(t *testing.T) {
	s := newTestStore(t, &mockQuerier{}, &stubEmbedder{vec: []float32{1}})

	if _, err := s.DeleteByMetadata(context.Background(), Filter{}); err == nil {
		t.Fatal("DeleteByMetadata accepted an empty filter")
	}
}

func TestCountsDegradeToZeroOnError(t *testing.T) {
	q := &mockQuerier{countErr: errors.New("connection refused")}
	s := newTestStore(t, q, &stubEmbedder{vec: []float32{1}})

	if got := s.DocumentCount(context.Background()); got != 0 {
		t.Errorf("DocumentCount = %d, want 0 on error", got)
	}
	if got := s.ChunkCountForDocument(context.Background(), "d1"); got != 0 {
		t.Errorf("ChunkCountForDocument = %d, want 0 on error", got)
	}
}
