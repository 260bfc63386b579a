// Command statsview is a terminal viewer over a named counter table: it
// samples the table directly from shared memory on the local host (it does
// not query /sample) and redraws a table of current values, following
// cmd/consumption's tabwriter-table presentation.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ja7ad/gostats/pkg/clock"
	"github.com/ja7ad/gostats/pkg/config"
	"github.com/ja7ad/gostats/pkg/ipc/lock"
	"github.com/ja7ad/gostats/pkg/stats"
	"github.com/ja7ad/gostats/pkg/types"
)

type opts struct {
	lockDir   string
	tableName string
	interval  time.Duration
	humanize  bool
}

func main() {
	var o opts

	root := &cobra.Command{
		Use:   "statsview",
		Short: "terminal viewer over a shared counter table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), o)
		},
	}

	def := config.Default()
	root.Flags().StringVar(&o.lockDir, "lock-dir", def.LockDir, "directory holding lock/segment tokens")
	root.Flags().StringVar(&o.tableName, "table", def.TableName, "counter table name")
	root.Flags().DurationVarP(&o.interval, "interval", "i", time.Second, "refresh interval")
	root.Flags().BoolVar(&o.humanize, "humanize", false, "render non-negative values as humanized byte sizes")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o opts) error {
	table, err := stats.Open(o.lockDir, o.tableName, lock.OpenExisting)
	if err != nil {
		return fmt.Errorf("open counter table %q: %w", o.tableName, err)
	}
	defer table.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cl := &stats.CounterList{}
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sample, err := table.Sample(cl, clock.NowNanos())
			if err != nil {
				fmt.Fprintf(os.Stderr, "sample failed: %v\n", err)
				continue
			}
			render(o, sample)
		}
	}
}

func render(o opts, sample *stats.Sample) {
	fmt.Print("\033[H\033[2J") // clear screen before redraw

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tVALUE")
	fmt.Fprintln(tw, "----\t-----")

	names := make([]string, sample.Count())
	values := make(map[string]int64, sample.Count())
	for i := 0; i < sample.Count(); i++ {
		names[i] = sample.Name(i)
		values[names[i]] = sample.Value(i)
	}
	sort.Strings(names)

	for _, name := range names {
		v := values[name]
		if o.humanize && v >= 0 {
			fmt.Fprintf(tw, "%s\t%s\n", name, types.Bytes(v).Humanized())
		} else {
			fmt.Fprintf(tw, "%s\t%d\n", name, v)
		}
	}
	tw.Flush()
}
