package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var procCmd = &cobra.Command{
	Use:   "proc",
	Short: "Show process name, main-process check and cache roots",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fr := HC.Frame
		roots := HC.Roots

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "package:\t%s\n", fr.PackageName)
		fmt.Fprintf(tw, "process:\t%s\n", fr.ProcessName())
		fmt.Fprintf(tw, "main process:\t%t\n", fr.IsMainProcess())
		fmt.Fprintf(tw, "debug:\t%t\n", fr.Debug)
		fmt.Fprintf(tw, "external cache:\t%s\n", roots.External)
		fmt.Fprintf(tw, "internal cache:\t%s\n", roots.Internal)
		fmt.Fprintf(tw, "storage root:\t%s\n", roots.StorageRoot(roots.PreferExternal))
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(procCmd)
}
