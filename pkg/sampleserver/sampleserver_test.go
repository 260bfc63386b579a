package sampleserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"

	"github.com/ja7ad/gostats/pkg/history"
	"github.com/ja7ad/gostats/pkg/ipc/lock"
	"github.com/ja7ad/gostats/pkg/stats"
)

func newTestTable(t *testing.T) (*stats.Table, string) {
	t.Helper()
	dir, err := os.MkdirTemp("", "gostats-sampleserver-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	tbl, err := stats.Open(dir, "test", lock.OpenOrCreate)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tbl.Close() })

	return tbl, dir
}

func TestHandleHealth(t *testing.T) {
	r := NewRouter(nil, "", "", log.NewNopLogger())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
}

func TestHandleSample(t *testing.T) {
	tbl, dir := newTestTable(t)

	ref, err := tbl.Allocate("requests", 0)
	require.NoError(t, err)
	ref.Set(42)

	r := NewRouter(tbl, "", "", log.NewNopLogger())

	req := httptest.NewRequest(http.MethodGet, "/sample", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status     string           `json:"status"`
		SampleTime int64            `json:"sample_time"`
		Sample     map[string]int64 `json:"sample"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body.Status)
	require.Equal(t, int64(42), body.Sample["requests"])

	_ = dir
}

func TestHandleMetrics(t *testing.T) {
	dir, err := os.MkdirTemp("", "gostats-sampleserver-hist-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	f, err := history.Open(dir, "cpu")
	require.NoError(t, err)
	require.NoError(t, f.AddSample(100, 5))
	require.NoError(t, f.Close())

	r := NewRouter(nil, dir, "", log.NewNopLogger())

	req := httptest.NewRequest(http.MethodGet, "/metrics?series=cpu", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Metric  string      `json:"metric"`
		Results [][2]int64 `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "cpu", body.Metric)
	require.Equal(t, [][2]int64{{100, 5}}, body.Results)
}

func TestHandleMetricsUnknownSeriesReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	r := NewRouter(nil, dir, "", log.NewNopLogger())

	req := httptest.NewRequest(http.MethodGet, "/metrics?series=nosuch", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "metric not found")

	_, err := os.Stat(filepath.Join(dir, "nosuch.mhf"))
	require.True(t, os.IsNotExist(err), "querying an unknown series must not create its history file")
}

func TestHandleMetricsRejectsPathTraversal(t *testing.T) {
	r := NewRouter(nil, t.TempDir(), "", log.NewNopLogger())

	req := httptest.NewRequest(http.MethodGet, "/metrics?series=..%2F..%2Fetc%2Fpasswd", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "error")
}

func TestHandleStaticRejectsDotDot(t *testing.T) {
	docroot := t.TempDir()
	r := NewRouter(nil, "", docroot, log.NewNopLogger())

	req := httptest.NewRequest(http.MethodGet, "/../etc/passwd", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
