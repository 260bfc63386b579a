// Command statsclient sends a single UPDATE datagram to a history daemon,
// the reference client for the ingest protocol.
package main

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ja7ad/gostats/pkg/ingest"
)

type opts struct {
	addr    string
	metrics []string
}

func main() {
	var o opts

	root := &cobra.Command{
		Use:   "statsclient name=value [name=value...]",
		Short: "send one UPDATE datagram to a history daemon",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.metrics = args
			return run(o)
		},
	}

	root.Flags().StringVar(&o.addr, "addr", "127.0.0.1:7010", "history daemon UDP address")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(o opts) error {
	metrics := make([]ingest.MetricUpdate, 0, len(o.metrics))
	for _, kv := range o.metrics {
		name, valueStr, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid metric %q, want name=value", kv)
		}
		value, err := strconv.ParseUint(valueStr, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid value in %q: %w", kv, err)
		}
		metrics = append(metrics, ingest.MetricUpdate{Name: name, Value: value})
	}

	conn, err := net.Dial("udp", o.addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", o.addr, err)
	}
	defer conn.Close()

	datagram := ingest.EncodeUpdate(uint32(time.Now().Unix()), metrics)

	// Go's net.Conn.Write reports a short write via a non-nil error, unlike
	// the sendto(2) return value the C client had to compare against -1/0
	// by hand; checking err is the whole story here.
	if _, err := conn.Write(datagram); err != nil {
		return fmt.Errorf("send datagram: %w", err)
	}

	fmt.Printf("sent %d metric(s) to %s\n", len(metrics), o.addr)
	return nil
}
