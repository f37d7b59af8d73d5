package cmd

import (
	"github.com/spf13/cobra"

	"github.com/koopa0/shiksha/internal/app"
)

var flagLimit int

var questionsCmd = &cobra.Command{
	Use:   "questions",
	Short: "List the scope's synthesized practice questions",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := scopeFromFlags()
		if err != nil {
			return err
		}

		a, err := app.New(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		questions, err := a.Store.ListQuestions(cmd.Context(), key, flagLimit)
		if err != nil {
			return err
		}
		return printJSON(questions)
	},
}

func init() {
	questionsCmd.Flags().IntVar(&flagLimit, "limit", 10, "maximum questions to return (1-30)")
	rootCmd.AddCommand(questionsCmd)
}
