// Package sampleserver implements the HTTP query surface shared by
// cmd/histd (history windows) and cmd/sampleserver (live counter samples).
package sampleserver

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"

	"github.com/ja7ad/gostats/pkg/clock"
	"github.com/ja7ad/gostats/pkg/history"
	"github.com/ja7ad/gostats/pkg/stats"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const healthCheckHTML = `<!doctype html><html><body><h1>gostats</h1><p>ok</p></body></html>`

// NewRouter wires the sample-server's four routes. table is the live
// counter table to sample (nil if this mount only serves history), and
// historyDir/docroot are the history-file and static-file roots (empty if
// either surface isn't mounted for this daemon).
func NewRouter(table *stats.Table, historyDir, docroot string, logger log.Logger) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", handleHealth).Methods(http.MethodGet)
	if table != nil {
		r.HandleFunc("/sample", handleSample(table, logger)).Methods(http.MethodGet)
	}
	if historyDir != "" {
		r.HandleFunc("/metrics", handleMetrics(historyDir, logger)).Methods(http.MethodGet)
	}
	if docroot != "" {
		// Keep request paths as sent (router-wide) so handleStatic sees and
		// rejects ".." itself instead of mux redirecting to a cleaned path.
		r.SkipClean(true)
		r.PathPrefix("/").HandlerFunc(handleStatic(docroot))
	}

	return r
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError serves JSON error bodies with HTTP 200, not a non-2xx status —
// the documented current behavior for this endpoint set.
func writeError(w http.ResponseWriter, msg string) {
	writeJSON(w, map[string]string{"error": msg})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(healthCheckHTML))
}

func handleSample(table *stats.Table, logger log.Logger) http.HandlerFunc {
	cl := &stats.CounterList{}
	return func(w http.ResponseWriter, r *http.Request) {
		sample, err := table.Sample(cl, clock.NowNanos())
		if err != nil {
			level.Error(logger).Log("msg", "sample failed", "err", err)
			writeError(w, err.Error())
			return
		}

		values := make(map[string]int64, sample.Count())
		for i := 0; i < sample.Count(); i++ {
			values[sample.Name(i)] = sample.Value(i)
		}

		writeJSON(w, map[string]interface{}{
			"status":      "ok",
			"sample_time": sample.SampleTime(),
			"sample":      values,
		})
	}
}

func handleMetrics(historyDir string, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		series := r.URL.Query().Get("series")
		if series == "" {
			writeError(w, "missing series query parameter")
			return
		}
		if strings.Contains(series, "..") || strings.ContainsAny(series, "/\\") {
			writeError(w, "invalid series name")
			return
		}

		if _, err := os.Stat(filepath.Join(historyDir, series+".mhf")); err != nil {
			writeError(w, "metric not found")
			return
		}

		f, err := history.Open(historyDir, series)
		if err != nil {
			level.Error(logger).Log("msg", "open history failed", "series", series, "err", err)
			writeError(w, err.Error())
			return
		}
		defer f.Close()

		points, err := f.Series(0)
		if err != nil {
			level.Error(logger).Log("msg", "read series failed", "series", series, "err", err)
			writeError(w, err.Error())
			return
		}

		results := make([][2]int64, len(points))
		for i, p := range points {
			results[i] = [2]int64{int64(p.Time), p.Value}
		}

		writeJSON(w, map[string]interface{}{
			"metric":  series,
			"results": results,
		})
	}
}

func handleStatic(docroot string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rel := strings.TrimPrefix(r.URL.Path, "/")
		if strings.Contains(rel, "..") {
			http.Error(w, "invalid path", http.StatusBadRequest)
			return
		}
		http.ServeFile(w, r, filepath.Join(docroot, rel))
	}
}
