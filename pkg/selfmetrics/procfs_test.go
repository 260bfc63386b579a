//go:build linux

package selfmetrics

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReadProcStatSelf(t *testing.T) {
	pid := os.Getpid()
	utime, stime, err := readProcStat(pid)
	if err != nil {
		t.Skipf("/proc unavailable in this environment: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	utime2, stime2, err := readProcStat(pid)
	require.NoError(t, err)
	require.GreaterOrEqual(t, utime2, utime)
	require.GreaterOrEqual(t, stime2, stime)
}

func TestReadProcStatNoSuchPID(t *testing.T) {
	_, _, err := readProcStat(999999)
	require.Error(t, err)
}

func TestReadProcRSSSelf(t *testing.T) {
	rss, err := readProcRSS(os.Getpid())
	if err != nil {
		t.Skipf("unable to read RSS in this environment: %v", err)
	}
	require.Greater(t, rss, uint64(0))
}

func TestReadProcRSSNoSuchPID(t *testing.T) {
	_, err := readProcRSS(999999)
	require.Error(t, err)
}

func TestDetectCgroup(t *testing.T) {
	v, detail, err := detectCgroup()
	if err != nil {
		t.Skipf("/proc/self/mountinfo unavailable in this environment: %v", err)
	}
	require.NotEmpty(t, detail)
	t.Logf("detected %s: %s", v, detail)
}
