package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var mergeLive bool

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge interventions that share a normalized name",
	Long: `Merge groups interventions by normalized name, keeps the most complete
record of each group, folds the others into it and deletes them.

Without --live nothing is written; the report shows what a live run would do.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.merger.Run(ctx, mergeLive)
		if report != nil {
			renderMerge(cmd.OutOrStdout(), report)
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(mergeCmd)
	mergeCmd.Flags().BoolVar(&mergeLive, "live", false, "apply the merge instead of reporting it")
}
