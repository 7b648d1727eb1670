package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/studylens/studylens/internal/knowledge"
)

// ingestChunkSize bounds one chunk; paragraphs are grouped up to it.
const ingestChunkSize = 1200

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Index plain-text files into the knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			chunks := chunkText(string(data), filepath.Base(path))
			added, err := a.store.AddChunks(ctx, chunks)
			if err != nil {
				return fmt.Errorf("index %s: %w", path, err)
			}
			if !added {
				fmt.Fprintf(os.Stderr, "skipped %s: no content\n", path)
				continue
			}
			fmt.Printf("indexed %s: %d chunks as document %s\n",
				path, len(chunks), chunks[0].Metadata.DocumentUUID)
		}
		return nil
	},
}

// chunkText splits text on blank lines and groups paragraphs into chunks of
// at most ingestChunkSize characters.
func chunkText(text, filename string) []knowledge.Chunk {
	var pieces []string
	var current strings.Builder
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(para) > ingestChunkSize {
			pieces = append(pieces, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}

	docUUID := uuid.NewString()
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	if ext == "" {
		ext = "txt"
	}
	now := time.Now().UTC()

	chunks := make([]knowledge.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, knowledge.Chunk{
			Content: piece,
			Metadata: knowledge.Metadata{
				DocumentUUID: docUUID,
				Filename:     filename,
				FileType:     ext,
				ChunkIndex:   i,
				TotalChunks:  len(pieces),
				ProcessedAt:  now,
			},
		})
	}
	return chunks
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
