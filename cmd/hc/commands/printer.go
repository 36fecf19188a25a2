package commands

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"hostcache/pkg/iox"
	"hostcache/pkg/sweeper"

	"github.com/dustin/go-humanize"
)

// progressPrinter 在同一行刷新已拷贝的字节数；total <= 0 表示大小未知
func progressPrinter(w io.Writer, total int64) iox.ProgressFunc {
	return func(n int64) {
		if total > 0 {
			fmt.Fprintf(w, "\r%s / %s (%d%%)", humanize.IBytes(uint64(n)), humanize.IBytes(uint64(total)), n*100/total)
			return
		}
		fmt.Fprintf(w, "\r%s", humanize.IBytes(uint64(n)))
	}
}

// printReport 以表格形式输出清理结果
func printReport(w io.Writer, title string, r *sweeper.Report) {
	fmt.Fprintf(w, "%s: removed %d, kept %d, failed %d, freed %s\n",
		title, len(r.Removed), len(r.Kept), len(r.Failed), humanize.IBytes(uint64(r.Bytes)))
	if len(r.Failed) == 0 {
		return
	}

	paths := make([]string, 0, len(r.Failed))
	for p := range r.Failed {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "PATH\tERROR\n")
	for _, p := range paths {
		fmt.Fprintf(tw, "%s\t%v\n", p, r.Failed[p])
	}
	tw.Flush()
}
