// Command sampleserver exposes a named counter table's live samples over
// HTTP, for producer processes that only need the /sample endpoint and not
// the history daemon.
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
	"github.com/ja7ad/gostats/pkg/ipc/lock"
	"github.com/ja7ad/gostats/pkg/sampleserver"
	"github.com/ja7ad/gostats/pkg/selfmetrics"
	"github.com/ja7ad/gostats/pkg/stats"
)

type opts struct {
	configPath string
	httpPort   int
	tableName  string
	docroot    string
}

func main() {
	var o opts

	root := &cobra.Command{
		Use:   "sampleserver",
		Short: "HTTP server exposing a counter table's live samples",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), o)
		},
	}

	root.Flags().StringVar(&o.configPath, "config", "", "path to a YAML config file")
	root.Flags().IntVar(&o.httpPort, "http-port", 0, "HTTP port (overrides config)")
	root.Flags().StringVar(&o.tableName, "table", "", "counter table name (overrides config)")
	root.Flags().StringVar(&o.docroot, "docroot", "", "static file root for the catch-all route")

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
	if o.httpPort != 0 {
		cfg.SampleHTTPPort = o.httpPort
	}
	if o.tableName != "" {
		cfg.TableName = o.tableName
	}
	if o.docroot != "" {
		cfg.Docroot = o.docroot
	}

	logger := log.NewLogfmtLogger(os.Stderr)
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "component", "sampleserver")

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

	router := sampleserver.NewRouter(table, "", cfg.Docroot, logger)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.SampleHTTPPort),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	level.Info(logger).Log("msg", "sampleserver started", "http_port", cfg.SampleHTTPPort, "table", cfg.TableName)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
