package cmd

import (
	"github.com/spf13/cobra"
)

func newRetryCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Re-enqueue failed records and crawl them again",
		Long: `Moves every failed record back to pending with a fresh attempt budget
(the recorded errors are kept as history) and runs the crawl loop. New URLs
cannot be seeded here; use crawl for that.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd.Context(), c, "", true)
		},
	}
	addCrawlFlags(cmd)
	return cmd
}
