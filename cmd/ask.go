package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/studylens/studylens/internal/answer"
	"github.com/studylens/studylens/internal/llm"
)

var (
	askSessionID string
	askProvider  string
	askTopK      int
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question over the indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		provider, err := a.defaultProvider()
		if askProvider != "" {
			provider, err = llm.ParseProvider(askProvider)
		}
		if err != nil {
			return err
		}

		events := a.engine.Generate(ctx, answer.Query{
			Question:  strings.Join(args, " "),
			K:         askTopK,
			Provider:  provider,
			SessionID: askSessionID,
		})

		for ev := range events {
			switch ev.Type {
			case answer.EventResponse:
				fmt.Print(ev.Content)
			case answer.EventWarning:
				fmt.Fprintf(os.Stderr, "\n[%s]\n", ev.Content)
			case answer.EventSources:
				fmt.Println("\n\nSources:")
				for _, src := range ev.Sources {
					fmt.Printf("  - %s\n", src.Filename)
				}
			case answer.EventError:
				return errors.New(ev.Content)
			case answer.EventDone:
			}
		}
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&askSessionID, "session", "", "session ID to scope retrieval")
	askCmd.Flags().StringVar(&askProvider, "provider", "", "generation provider (gemini or openai)")
	askCmd.Flags().IntVar(&askTopK, "top-k", 0, "number of chunks to retrieve")
	rootCmd.AddCommand(askCmd)
}
