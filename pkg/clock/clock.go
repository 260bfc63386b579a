// Package clock provides the monotonic-time helpers used by the counter
// table's sequence-numbered samples and the timer primitive.
package clock

import "time"

// start anchors NowNanos' monotonic reading; it is read once at process
// start so callers within the same process always see a monotonically
// increasing value.
var start = time.Now()

// NowNanos returns nanoseconds elapsed since this process started, backed by
// time.Now's monotonic clock reading. It is only meaningful within a single
// process and must never be persisted or compared across processes.
func NowNanos() int64 {
	return time.Since(start).Nanoseconds()
}

// NowUnixSeconds returns the current wall-clock time as Unix seconds,
// truncated to uint32 the way the history file's sample_time field and the
// ingest wire protocol both require.
func NowUnixSeconds() uint32 {
	return uint32(time.Now().Unix())
}
