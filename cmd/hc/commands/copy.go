package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"hostcache/pkg/iox"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	chunkSizeFlag string
	showProgress  bool
)

var copyCmd = &cobra.Command{
	Use:   "copy <src> <dst>",
	Short: "Copy a stream in fixed-size chunks",
	Long:  `Copy src to dst chunk by chunk. "-" means stdin / stdout. Any read or write error is reported.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		chunk := HC.ChunkSize
		if chunkSizeFlag != "" {
			n, err := humanize.ParseBytes(chunkSizeFlag)
			if err != nil {
				return fmt.Errorf("invalid --chunk-size: %w", err)
			}
			if n > iox.MaxChunkSize {
				return fmt.Errorf("invalid --chunk-size: %s exceeds %s", humanize.IBytes(n), humanize.IBytes(iox.MaxChunkSize))
			}
			chunk = int(n)
		}
		copier := iox.Copier{ChunkSize: chunk}

		// 1. 来源
		var src io.Reader = cmd.InOrStdin()
		var total int64
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return iox.NewError(iox.SourceUnreadable, "open", args[0], err)
			}
			defer f.Close()
			if info, err := f.Stat(); err == nil {
				total = info.Size()
			}
			src = f
		}

		// 2. 目标
		var dst io.WriteCloser
		if args[1] == "-" {
			// bufio.Writer 实现了 Flush，Copy 结束前会被刷新
			dst = nopWriteCloser{bufio.NewWriter(cmd.OutOrStdout())}
		} else {
			f, err := os.Create(args[1])
			if err != nil {
				return iox.NewError(iox.SinkUnwritable, "create", args[1], err)
			}
			dst = f
		}

		var onProgress iox.ProgressFunc
		if showProgress {
			onProgress = progressPrinter(cmd.ErrOrStderr(), total)
		}

		n, err := copier.CopyAndClose(src, dst, onProgress)
		if showProgress {
			fmt.Fprintln(cmd.ErrOrStderr())
		}
		if err != nil {
			return fmt.Errorf("copy failed: %w", err)
		}
		HC.Logger.WithField("bytes", n).Debug("copy done")
		return nil
	},
}

// nopWriteCloser 保留底层 writer 的 Flush
type nopWriteCloser struct {
	*bufio.Writer
}

func (nopWriteCloser) Close() error { return nil }

func init() {
	copyCmd.Flags().StringVar(&chunkSizeFlag, "chunk-size", "", `Chunk size, e.g. "32KiB" (default from copy.chunk_size)`)
	copyCmd.Flags().BoolVar(&showProgress, "progress", false, "Print progress to stderr")
	rootCmd.AddCommand(copyCmd)
}
