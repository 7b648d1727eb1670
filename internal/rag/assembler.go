package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/studylens/studylens/internal/knowledge"
)

const (
	// DefaultPerChunkCap limits how much of any single chunk reaches the
	// prompt.
	DefaultPerChunkCap = 1000

	// DefaultContextBudget bounds the total assembled context.
	DefaultContextBudget = 4000
)

// Assembler packs ranked search results into one prompt context string,
// labelling each chunk with its provenance so the model can cite sources.
type Assembler struct {
	perChunkCap   int
	contextBudget int
}

// NewAssembler creates an Assembler. Non-positive limits fall back to the
// defaults.
func NewAssembler(perChunkCap, contextBudget int) *Assembler {
	if perChunkCap <= 0 {
		perChunkCap = DefaultPerChunkCap
	}
	if contextBudget <= 0 {
		contextBudget = DefaultContextBudget
	}
	return &Assembler{perChunkCap: perChunkCap, contextBudget: contextBudget}
}

// Pack renders results in rank order until the next block would overflow
// the budget, then stops. Overlong chunks are truncated with an ellipsis.
// No results means an empty context.
func (a *Assembler) Pack(results []knowledge.SearchResult) string {
	var b strings.Builder
	for _, res := range results {
		block := a.renderBlock(res)
		need := len(block)
		if b.Len() > 0 {
			need += 2 // separating blank line
		}
		if b.Len()+need > a.contextBudget {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(block)
	}
	return b.String()
}

func (a *Assembler) renderBlock(res knowledge.SearchResult) string {
	content := res.Content
	if len(content) > a.perChunkCap {
		// Back off to a rune boundary so the cut never produces invalid
		// UTF-8.
		cut := a.perChunkCap
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut] + "..."
	}
	return fmt.Sprintf("[Source: %s | Relevance: %.2f]\n%s", res.Metadata.Filename, res.Score, content)
}
