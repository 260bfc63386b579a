// Package selfmetrics feeds a daemon's own CPU-tick and RSS usage into its
// counter table, so the same /sample surface that reports producer counters
// also reports the daemon's own resource draw.
package selfmetrics

import (
	"context"
	"fmt"
	"time"

	"github.com/ja7ad/gostats/pkg/stats"
)

// HostEnvironment reports the cgroup hierarchy this process is running
// under, for a daemon to log once at startup alongside its self-metrics.
func HostEnvironment() (CgroupVersion, string, error) {
	return detectCgroup()
}

// Reading is one snapshot of a process's CPU-tick and RSS usage.
type Reading struct {
	CPUTicks uint64 // utime + stime, jiffies
	RSSBytes uint64
}

// Sample reads pid's current CPU ticks and RSS from /proc.
func Sample(pid int) (Reading, error) {
	utime, stime, err := readProcStat(pid)
	if err != nil {
		return Reading{}, fmt.Errorf("selfmetrics: read proc stat: %w", err)
	}
	rss, err := readProcRSS(pid)
	if err != nil {
		return Reading{}, fmt.Errorf("selfmetrics: read proc rss: %w", err)
	}
	return Reading{CPUTicks: utime + stime, RSSBytes: rss}, nil
}

// Ticker periodically samples a process and records the readings onto two
// gauge counters it allocates on the given table.
type Ticker struct {
	pid      int
	interval time.Duration
	cpu      stats.CounterRef
	rss      stats.CounterRef
}

// NewTicker allocates "daemon.cpu_ticks" and "daemon.rss_bytes" gauge
// counters on table and returns a Ticker that will keep them current for
// pid.
func NewTicker(table *stats.Table, pid int, interval time.Duration) (*Ticker, error) {
	cpu, err := table.Allocate("daemon.cpu_ticks", stats.FlagGauge)
	if err != nil {
		return nil, fmt.Errorf("selfmetrics: allocate cpu_ticks: %w", err)
	}
	rss, err := table.Allocate("daemon.rss_bytes", stats.FlagGauge)
	if err != nil {
		return nil, fmt.Errorf("selfmetrics: allocate rss_bytes: %w", err)
	}
	return &Ticker{pid: pid, interval: interval, cpu: cpu, rss: rss}, nil
}

// Run samples pid every interval until ctx is cancelled. It logs nothing
// itself; per-tick errors are returned to the caller-supplied onError so the
// daemon can decide how to surface them.
func (t *Ticker) Run(ctx context.Context, onError func(error)) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r, err := Sample(t.pid)
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			t.cpu.Set(int64(r.CPUTicks))
			t.rss.Set(int64(r.RSSBytes))
		}
	}
}
