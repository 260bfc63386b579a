package lock

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenCreateNewThenOpenExisting(t *testing.T) {
	dir := t.TempDir()

	l1, err := Open(dir, "a", CreateNew)
	require.NoError(t, err)
	defer l1.Close()

	_, err = Open(dir, "a", CreateNew)
	require.Error(t, err)

	l2, err := Open(dir, "a", OpenExisting)
	require.NoError(t, err)
	defer l2.Close()
}

func TestOpenExistingMissingFails(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(dir, "missing", OpenExisting)
	require.Error(t, err)
}

func TestNameTooLongRejected(t *testing.T) {
	dir := t.TempDir()
	long := ""
	for i := 0; i <= MaxNameLen; i++ {
		long += "x"
	}
	_, err := Open(dir, long, OpenOrCreate)
	require.Error(t, err)
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, "a", OpenOrCreate)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Acquire())
	require.NoError(t, l.Release())
}

func TestTryAcquireFromSecondHandleFails(t *testing.T) {
	dir := t.TempDir()

	l1, err := Open(dir, "a", OpenOrCreate)
	require.NoError(t, err)
	defer l1.Close()
	require.NoError(t, l1.Acquire())

	l2, err := Open(dir, "a", OpenExisting)
	require.NoError(t, err)
	defer l2.Close()

	ok, err := l2.TryAcquire()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, l1.Release())

	ok, err = l2.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, l2.Release())
}

func TestCounterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, "a", OpenOrCreate)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Acquire())
	defer l.Release()

	v, err := l.ReadCounter()
	require.NoError(t, err)
	require.Equal(t, uint32(0), v)

	require.NoError(t, l.WriteCounter(7))
	v, err = l.ReadCounter()
	require.NoError(t, err)
	require.Equal(t, uint32(7), v)
}

func TestRemoveDeletesTokenFile(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, "a", OpenOrCreate)
	require.NoError(t, err)

	require.NoError(t, l.Remove())

	_, err = os.Stat(dir + "/a.sem")
	require.True(t, os.IsNotExist(err))
}
