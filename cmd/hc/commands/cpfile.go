package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var cpFileCmd = &cobra.Command{
	Use:   "cp-file <src> <dst-dir> <name>",
	Short: "Best-effort copy of a file into a storage directory",
	Long:  `Copy src to <cache root>/<dst-dir>/<name> and print the absolute destination path. Copy failures are only logged.`,
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		dst := HC.Materializer.CopyFileToFolder(args[1], args[2], args[0])
		if dst == "" {
			return errors.New("destination unavailable")
		}
		fmt.Fprintln(cmd.OutOrStdout(), dst)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cpFileCmd)
}
