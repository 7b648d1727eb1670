// Package cmd wires the command line interface.
package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "studylens",
	Short: "Session-aware study assistant over your own documents",
	Long: `StudyLens answers questions grounded in your indexed documents.
Documents are chunked and embedded into PostgreSQL with pgvector; answers
stream sentence by sentence and cite their sources.`,
	SilenceUsage: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		// A missing .env file is the normal case outside development.
		_ = godotenv.Load()
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
