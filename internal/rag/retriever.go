// Package rag turns a question into ranked supporting chunks and packs them
// into a bounded prompt context.
package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/studylens/studylens/internal/knowledge"
	"github.com/studylens/studylens/internal/llm"
	"github.com/studylens/studylens/internal/log"
)

// DefaultTopK is the number of chunks retrieved when the caller does not
// ask for a specific count.
const DefaultTopK = 5

// rateLimitRetryDelay is the single backoff applied when the embedding call
// inside search hits provider quota.
const rateLimitRetryDelay = 5 * time.Second

// Searcher is the slice of the chunk store the retriever needs.
type Searcher interface {
	Search(ctx context.Context, query string, k int, filter knowledge.Filter) ([]knowledge.SearchResult, error)
}

// filterCues are question words that suggest the user is talking about a
// particular file or format. Only then is a model call spent on extracting
// a metadata filter.
var filterCues = []string{"file", "document", "pdf", "presentation", "notebook", "code"}

// allowedFileTypes is the closed set an extracted file_type may take.
var allowedFileTypes = map[string]bool{
	"pdf": true, "pptx": true, "docx": true, "ipynb": true, "py": true, "txt": true,
}

const extractSystemPrompt = `Extract a metadata filter from the user's question.
Respond with JSON only, no prose: {"file_type": "<pdf|pptx|docx|ipynb|py|txt>"}
or {} when the question names no file format.`

// Retriever finds and re-ranks the chunks most relevant to a question.
type Retriever struct {
	searcher Searcher
	logger   log.Logger

	retryDelay time.Duration
}

// NewRetriever creates a Retriever. A nil logger disables logging.
func NewRetriever(searcher Searcher, logger log.Logger) *Retriever {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Retriever{
		searcher:   searcher,
		logger:     logger,
		retryDelay: rateLimitRetryDelay,
	}
}

// Retrieve searches for the k chunks most relevant to question and re-ranks
// them. A non-nil scope restricts the search to those documents and takes
// precedence over any filter the question itself implies; only unscoped
// questions get query-derived filter extraction, which uses gen and fails
// open. A rate-limited search is retried once after a fixed delay.
func (r *Retriever) Retrieve(ctx context.Context, gen llm.Generator, question string, k int, scope []string) ([]knowledge.SearchResult, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	var filter knowledge.Filter
	if scope != nil {
		filter.DocumentUUIDs = scope
	} else {
		filter = r.extractFilter(ctx, gen, question)
	}

	results, err := r.searcher.Search(ctx, question, k, filter)
	if err != nil && llm.IsRateLimited(err) {
		r.logger.Warn("search rate limited, retrying once", "delay", r.retryDelay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retryDelay):
		}
		results, err = r.searcher.Search(ctx, question, k, filter)
	}
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	rerank(question, results)
	return results, nil
}

// extractFilter asks the model for a file-type filter when the question
// hints at one. Any failure, and any value outside the allowed set, yields
// an unfiltered search.
func (r *Retriever) extractFilter(ctx context.Context, gen llm.Generator, question string) knowledge.Filter {
	if gen == nil || !hasFilterCue(question) {
		return knowledge.Filter{}
	}

	raw, err := llm.Complete(ctx, gen, extractSystemPrompt, question)
	if err != nil {
		r.logger.Warn("filter extraction failed, searching unfiltered", "error", err)
		return knowledge.Filter{}
	}

	var extracted struct {
		FileType string `json:"file_type"`
	}
	raw = strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), "`"))
	if err := json.Unmarshal([]byte(raw), &extracted); err != nil {
		r.logger.Warn("filter extraction returned malformed JSON, searching unfiltered", "error", err)
		return knowledge.Filter{}
	}
	if !allowedFileTypes[extracted.FileType] {
		return knowledge.Filter{}
	}
	r.logger.Debug("extracted metadata filter", "file_type", extracted.FileType)
	return knowledge.Filter{FileType: extracted.FileType}
}

func hasFilterCue(question string) bool {
	q := strings.ToLower(question)
	for _, cue := range filterCues {
		if strings.Contains(q, cue) {
			return true
		}
	}
	return false
}

// rerank adjusts vector scores with lexical signals and sorts best first.
// Whole-chunk keyword overlap is worth 0.05 per shared token and overlap
// with the chunk's first paragraph 0.10 per token, capped so the adjusted
// score stays within [0, 1].
func rerank(question string, results []knowledge.SearchResult) {
	terms := tokens(question)
	for i := range results {
		content := results[i].Content
		bonus := 0.05*float64(overlapCount(terms, content)) +
			0.10*float64(overlapCount(terms, firstParagraph(content)))
		results[i].Score = math.Min(1.0, results[i].Score+bonus)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

func firstParagraph(content string) string {
	if idx := strings.Index(content, "\n\n"); idx >= 0 {
		return content[:idx]
	}
	return content
}

// tokens lowercases and strips surrounding punctuation, deduplicated.
func tokens(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if w != "" {
			set[w] = true
		}
	}
	return set
}

// overlapCount is the size of the token intersection.
func overlapCount(terms map[string]bool, content string) int {
	hits := 0
	for t := range tokens(content) {
		if terms[t] {
			hits++
		}
	}
	return hits
}
