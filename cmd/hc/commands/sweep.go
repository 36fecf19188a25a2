package commands

import (
	"fmt"

	"hostcache/pkg/materializer"

	"github.com/spf13/cobra"
)

var sweepOrphans bool

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove cache files materialized by previous runs",
	Long: `Delete every tracked cache file and forget it. With --orphans, untracked files in the
cache directory are removed too, except those matched by .cacheignore.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		report, err := HC.Sweeper.Sweep(ctx)
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}
		printReport(out, "tracked", report)

		if !sweepOrphans {
			return nil
		}
		dir, err := HC.Resolver.EnsureDir(materializer.CacheSubdir)
		if err != nil {
			return err
		}
		orphans, err := HC.Sweeper.SweepOrphans(ctx, dir)
		if err != nil {
			return fmt.Errorf("orphan sweep failed: %w", err)
		}
		printReport(out, "orphans", orphans)
		return nil
	},
}

func init() {
	sweepCmd.Flags().BoolVar(&sweepOrphans, "orphans", false, "Also remove untracked files in the cache directory")
	rootCmd.AddCommand(sweepCmd)
}
