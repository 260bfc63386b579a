package ingest

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ja7ad/gostats/pkg/history"
)

func TestMetricIndexCachesOpenedFiles(t *testing.T) {
	dir, err := os.MkdirTemp("", "gostats-ingest-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	opens := 0
	idx := NewMetricIndex(16, func(metric string) (*history.File, error) {
		opens++
		return history.Open(dir, metric)
	})
	defer idx.Close()

	f1, err := idx.Get("cpu")
	require.NoError(t, err)
	f2, err := idx.Get("cpu")
	require.NoError(t, err)

	require.Same(t, f1, f2)
	require.Equal(t, 1, opens)
}

func TestMetricIndexDistinguishesMetrics(t *testing.T) {
	dir, err := os.MkdirTemp("", "gostats-ingest-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	idx := NewMetricIndex(16, func(metric string) (*history.File, error) {
		return history.Open(dir, metric)
	})
	defer idx.Close()

	for i := 0; i < 8; i++ {
		_, err := idx.Get(fmt.Sprintf("metric-%d", i))
		require.NoError(t, err)
	}
}
