// Package cmd implements the shiksha command-line interface.
package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/koopa0/shiksha/internal/scope"
)

var (
	flagSubject  string
	flagChapter  string
	flagTopic    string
	flagSubtopic string
)

var rootCmd = &cobra.Command{
	Use:   "shiksha",
	Short: "Subtopic knowledge pipeline for textbook content",
	Long: `shiksha ingests textbook PDFs into a per-subtopic knowledge base and
answers student questions grounded strictly in the ingested content.

Every command operates on one scope, addressed by the four flags
--subject, --chapter, --topic and --subtopic.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagSubject, "subject", "", "subject identifier (e.g. science)")
	rootCmd.PersistentFlags().StringVar(&flagChapter, "chapter", "", "chapter identifier")
	rootCmd.PersistentFlags().StringVar(&flagTopic, "topic", "", "topic identifier")
	rootCmd.PersistentFlags().StringVar(&flagSubtopic, "subtopic", "", "subtopic identifier")
}

// scopeFromFlags builds and validates the scope key shared by all commands.
func scopeFromFlags() (scope.Key, error) {
	key := scope.New(flagSubject, flagChapter, flagTopic, flagSubtopic)
	if err := key.Validate(); err != nil {
		return scope.Key{}, err
	}
	return key, nil
}

// printJSON renders a command result for both humans and scripts.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
