package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var noCreate bool

var errNoDir = errors.New("storage directory unavailable")

var dirCmd = &cobra.Command{
	Use:   "dir [subdir]",
	Short: "Resolve an application storage directory",
	Long:  `Print <cache root>/<subdir>. The directory is created unless --no-create is given.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		subdir := ""
		if len(args) == 1 {
			subdir = args[0]
		}

		dir, ok := HC.Resolver.ResolveStorageDir(subdir, !noCreate)
		if !ok {
			return errNoDir
		}
		fmt.Fprintln(cmd.OutOrStdout(), dir)
		return nil
	},
}

func init() {
	dirCmd.Flags().BoolVar(&noCreate, "no-create", false, "Only compute the path, do not create it")
	rootCmd.AddCommand(dirCmd)
}
