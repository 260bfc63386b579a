package selfmetrics

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ja7ad/gostats/pkg/ipc/lock"
	"github.com/ja7ad/gostats/pkg/stats"
)

func TestSampleCurrentProcess(t *testing.T) {
	r, err := Sample(os.Getpid())
	if err != nil {
		t.Skipf("proc filesystem unavailable in this environment: %v", err)
	}
	require.NotZero(t, r.RSSBytes)
}

func TestTickerRecordsReadings(t *testing.T) {
	dir := t.TempDir()
	table, err := stats.Open(dir, "selftest", lock.OpenOrCreate)
	require.NoError(t, err)
	defer table.Close()

	tk, err := NewTicker(table, os.Getpid(), 10*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var errs []error
	tk.Run(ctx, func(err error) { errs = append(errs, err) })

	if len(errs) > 0 {
		t.Skipf("proc filesystem unavailable in this environment: %v", errs[0])
	}
	require.NotZero(t, tk.rss.Value())
}
