// Command keystats is a demo counter-table producer: it counts keystrokes
// read from stdin into a shared counter.
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ja7ad/gostats/pkg/config"
	"github.com/ja7ad/gostats/pkg/ipc/lock"
	"github.com/ja7ad/gostats/pkg/stats"
)

type opts struct {
	lockDir   string
	tableName string
	counter   string
}

func main() {
	var o opts

	root := &cobra.Command{
		Use:   "keystats",
		Short: "count keystrokes from stdin into a shared counter",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(o)
		},
	}

	def := config.Default()
	root.Flags().StringVar(&o.lockDir, "lock-dir", def.LockDir, "directory holding lock/segment tokens")
	root.Flags().StringVar(&o.tableName, "table", def.TableName, "counter table name")
	root.Flags().StringVar(&o.counter, "counter", "keystats.keys", "counter name to increment")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(o opts) error {
	table, err := stats.Open(o.lockDir, o.tableName, lock.OpenOrCreate)
	if err != nil {
		return fmt.Errorf("open counter table: %w", err)
	}
	defer table.Close()

	ref, err := table.Allocate(o.counter, 0)
	if err != nil {
		return fmt.Errorf("allocate counter %q: %w", o.counter, err)
	}

	fmt.Printf("counting keystrokes into %q on table %q; type, then Ctrl-D to stop\n", o.counter, o.tableName)

	r := bufio.NewReader(os.Stdin)
	for {
		_, _, err := r.ReadRune()
		if err != nil {
			break
		}
		ref.Increment()
	}

	fmt.Printf("%q now at %d\n", o.counter, ref.Value())
	return nil
}
