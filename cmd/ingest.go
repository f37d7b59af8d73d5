package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/koopa0/shiksha/internal/app"
)

var (
	flagTitle  string
	flagPDF    string
	flagSource string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a textbook PDF into the scope's knowledge base",
	Long: `Extracts the PDF to markdown, segments and chunks it, synthesizes a
practice question bank, and replaces everything previously stored for
the scope. Re-running with the same input is safe.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := scopeFromFlags()
		if err != nil {
			return err
		}

		pdf, err := os.ReadFile(flagPDF)
		if err != nil {
			return fmt.Errorf("reading pdf: %w", err)
		}
		sourceName := flagSource
		if sourceName == "" {
			sourceName = filepath.Base(flagPDF)
		}

		a, err := app.New(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Ingest.Ingest(cmd.Context(), key, flagTitle, pdf, sourceName)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&flagTitle, "title", "", "subtopic title shown to students")
	ingestCmd.Flags().StringVar(&flagPDF, "pdf", "", "path to the textbook PDF")
	ingestCmd.Flags().StringVar(&flagSource, "source", "", "source file name to record (defaults to the pdf file name)")

	for _, flag := range []string{"title", "pdf"} {
		if err := ingestCmd.MarkFlagRequired(flag); err != nil {
			panic(fmt.Sprintf("BUG: marking %s required: %v", flag, err))
		}
	}

	rootCmd.AddCommand(ingestCmd)
}
