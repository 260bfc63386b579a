package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ja7ad/gostats/pkg/ipc/lock"
)

func TestTimerRecordsElapsedMicros(t *testing.T) {
	dir := t.TempDir()
	tbl, err := Open(dir, "timertest", lock.OpenOrCreate)
	require.NoError(t, err)
	defer tbl.Close()

	ref, err := tbl.Allocate("op.latency", FlagTimer)
	require.NoError(t, err)

	timer := NewTimer(ref)
	timer.Enter()
	time.Sleep(5 * time.Millisecond)
	timer.Exit()

	require.Greater(t, ref.Value(), int64(0))
}

func TestTimerNestedEnterExitOnlyRecordsOutermost(t *testing.T) {
	dir := t.TempDir()
	tbl, err := Open(dir, "timertest2", lock.OpenOrCreate)
	require.NoError(t, err)
	defer tbl.Close()

	ref, err := tbl.Allocate("op.latency", FlagTimer)
	require.NoError(t, err)

	timer := NewTimer(ref)
	timer.Enter()
	timer.Enter()
	time.Sleep(2 * time.Millisecond)
	timer.Exit() // inner exit: depth 2 -> 1, must not record yet
	require.Equal(t, int64(0), ref.Value())
	timer.Exit() // outer exit: depth 1 -> 0, records
	require.Greater(t, ref.Value(), int64(0))
}

func TestTimerScopeRecordsEvenOnPanic(t *testing.T) {
	dir := t.TempDir()
	tbl, err := Open(dir, "timertest3", lock.OpenOrCreate)
	require.NoError(t, err)
	defer tbl.Close()

	ref, err := tbl.Allocate("op.latency", FlagTimer)
	require.NoError(t, err)

	timer := NewTimer(ref)
	func() {
		defer func() { _ = recover() }()
		timer.Scope(func() {
			time.Sleep(2 * time.Millisecond)
			panic("boom")
		})
	}()

	require.Greater(t, ref.Value(), int64(0))
}
