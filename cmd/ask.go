package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/koopa0/shiksha/internal/answer"
	"github.com/koopa0/shiksha/internal/app"
	"github.com/koopa0/shiksha/internal/store"
)

var (
	flagTopK int
	flagLane string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the scope's ingested content",
	Long: `Retrieves the most similar chunks for the question and generates an
answer grounded strictly in them, with citations back to the chunks.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := scopeFromFlags()
		if err != nil {
			return err
		}
		lane, err := parseLaneFilter(flagLane)
		if err != nil {
			return err
		}

		a, err := app.New(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Answer.Answer(cmd.Context(), key, strings.Join(args, " "), flagTopK, lane)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func parseLaneFilter(s string) (store.LaneFilter, error) {
	switch store.LaneFilter(s) {
	case store.FilterFacts, store.FilterActivities, store.FilterBoth:
		return store.LaneFilter(s), nil
	default:
		return "", fmt.Errorf("invalid lane %q (facts, activities or both)", s)
	}
}

func init() {
	askCmd.Flags().IntVar(&flagTopK, "top-k", answer.DefaultTopK, "number of chunks in the context window")
	askCmd.Flags().StringVar(&flagLane, "lane", string(store.FilterBoth), "restrict retrieval to one lane (facts, activities, both)")

	rootCmd.AddCommand(askCmd)
}
