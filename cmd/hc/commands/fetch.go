package commands

import (
	"fmt"

	"hostcache/pkg/iox"
	"hostcache/pkg/types"

	"github.com/spf13/cobra"
)

var fetchProgress bool

var fetchCmd = &cobra.Command{
	Use:   "fetch <handle>",
	Short: "Materialize a resource handle into the cache directory",
	Long: `Copy the resource behind handle (a path, file:// or s3:// URI) to <cache root>/cache/<name>
and print the local path. The file is tracked and removed by 'hc sweep'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		handle := types.ResourceHandle(args[0])

		var onProgress iox.ProgressFunc
		if fetchProgress {
			onProgress = progressPrinter(cmd.ErrOrStderr(), 0)
		}

		path, ok := HC.Materializer.MaterializeWithProgress(cmd.Context(), handle, onProgress)
		if fetchProgress {
			fmt.Fprintln(cmd.ErrOrStderr())
		}
		if !ok {
			return fmt.Errorf("failed to materialize %s", handle)
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchProgress, "progress", false, "Print progress to stderr")
	rootCmd.AddCommand(fetchCmd)
}
