// Command histd runs the history daemon: a UDP listener that ingests
// counter updates and an HTTP server that serves history-file queries.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"github.com/ja7ad/gostats/pkg/config"
	"github.com/ja7ad/gostats/pkg/history"
	"github.com/ja7ad/gostats/pkg/ingest"
	"github.com/ja7ad/gostats/pkg/ipc/lock"
	"github.com/ja7ad/gostats/pkg/sampleserver"
	"github.com/ja7ad/gostats/pkg/selfmetrics"
	"github.com/ja7ad/gostats/pkg/stats"
)

type opts struct {
	configPath string
	udpPort    int
	httpPort   int
	historyDir string
	tableName  string
}

func main() {
	var o opts

	root := &cobra.Command{
		Use:   "histd",
		Short: "UDP ingest + HTTP history query daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), o)
		},
	}

	root.Flags().StringVar(&o.configPath, "config", "", "path to a YAML config file")
	root.Flags().IntVar(&o.udpPort, "udp-port", 0, "UDP ingest port (overrides config)")
	root.Flags().IntVar(&o.httpPort, "http-port", 0, "HTTP query port (overrides config)")
	root.Flags().StringVar(&o.historyDir, "history-dir", "", "history file directory (overrides config)")
	root.Flags().StringVar(&o.tableName, "table", "", "self-metrics counter table name (overrides config)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o opts) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.udpPort != 0 {
		cfg.UDPPort = o.udpPort
	}
	if o.httpPort != 0 {
		cfg.HistoryHTTPPort = o.httpPort
	}
	if o.historyDir != "" {
		cfg.HistoryDir = o.historyDir
	}
	if o.tableName != "" {
		cfg.TableName = o.tableName
	}

	logger := log.NewLogfmtLogger(os.Stderr)
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "component", "histd")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	table, err := stats.Open(cfg.LockDir, cfg.TableName, lock.OpenOrCreate)
	if err != nil {
		return fmt.Errorf("open counter table: %w", err)
	}
	defer table.Close()

	if v, detail, err := selfmetrics.HostEnvironment(); err != nil {
		level.Warn(logger).Log("msg", "cgroup detection failed", "err", err)
	} else {
		level.Info(logger).Log("msg", "host environment", "cgroup", v.String(), "detail", detail)
	}

	tk, err := selfmetrics.NewTicker(table, os.Getpid(), 5*time.Second)
	if err != nil {
		level.Warn(logger).Log("msg", "self-metrics disabled", "err", err)
	} else {
		go tk.Run(ctx, func(err error) {
			level.Warn(logger).Log("msg", "self-metrics sample failed", "err", err)
		})
	}

	listener, err := ingest.NewListener(cfg.UDPPort, cfg.HistoryDir, cfg.IndexCapacity, logger, func(metric string) (*history.File, error) {
		return history.Open(cfg.HistoryDir, metric)
	})
	if err != nil {
		return fmt.Errorf("start listener: %w", err)
	}
	defer listener.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- listener.Run(ctx)
	}()

	router := sampleserver.NewRouter(nil, cfg.HistoryDir, "", logger)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HistoryHTTPPort),
		Handler: router,
	}
	go func() {
		level.Info(logger).Log("msg", "http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			level.Error(logger).Log("msg", "http server failed", "err", err)
		}
	}()

	level.Info(logger).Log("msg", "histd started", "udp_port", cfg.UDPPort, "http_port", cfg.HistoryHTTPPort)

	select {
	case <-ctx.Done():
		level.Info(logger).Log("msg", "shutting down")
	case err := <-errCh:
		if err != nil {
			level.Error(logger).Log("msg", "listener stopped", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
