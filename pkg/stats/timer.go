package stats

import (
	"sync/atomic"

	"github.com/ja7ad/gostats/pkg/clock"
)

// Timer wraps a counter slot with enter/exit reentrancy: nested Enter/Exit
// pairs only record elapsed time on the outermost pair.
// Timer itself is not safe for concurrent use by multiple goroutines — like
// the source it wraps, a timer tracks one call stack.
type Timer struct {
	ref        CounterRef
	startNanos int64
	depth      int32
}

// NewTimer wraps ref, which should have been allocated with FlagTimer set.
func NewTimer(ref CounterRef) *Timer {
	return &Timer{ref: ref}
}

// Enter marks entry into the timed region, recording the start time only on
// the outermost call.
func (t *Timer) Enter() {
	if t.depth == 0 {
		t.startNanos = clock.NowNanos()
	}
	t.depth++
}

// Exit marks exit from the timed region. On the outermost Exit, the elapsed
// microseconds since the matching Enter are added to the wrapped counter.
func (t *Timer) Exit() {
	t.depth--
	if t.depth == 0 {
		elapsedMicros := (clock.NowNanos() - t.startNanos) / 1000
		atomic.AddInt64(&t.ref.slot().Value, elapsedMicros)
	}
}

// Scope runs f, timing it. Because it calls Exit in a defer, the elapsed
// time is recorded even if f panics.
func (t *Timer) Scope(f func()) {
	t.Enter()
	defer t.Exit()
	f()
}
