package shm

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ja7ad/gostats/pkg/ipc/lock"
	"github.com/ja7ad/gostats/pkg/xerrors"
)

func TestOpenCreatesAndInitializesSegment(t *testing.T) {
	dir := t.TempDir()

	seg, created, err := Open(dir, "a", 64, lock.OpenOrCreate, DestroyOnCloseIfLast)
	require.NoError(t, err)
	defer seg.Close()

	require.True(t, created)
	require.Len(t, seg.Data(), 64)
}

func TestOpenReattachDoesNotReportCreated(t *testing.T) {
	dir := t.TempDir()

	seg1, created1, err := Open(dir, "a", 64, lock.OpenOrCreate, DestroyOnCloseIfLast)
	require.NoError(t, err)
	require.True(t, created1)

	seg2, created2, err := Open(dir, "a", 64, lock.OpenOrCreate, DestroyOnCloseIfLast)
	require.NoError(t, err)
	require.False(t, created2)

	require.NoError(t, seg1.Close())
	require.NoError(t, seg2.Close())
}

func TestOpenRejectsSizeMismatch(t *testing.T) {
	dir := t.TempDir()

	seg, _, err := Open(dir, "a", 64, lock.OpenOrCreate, NeverDestroy)
	require.NoError(t, err)
	require.NoError(t, seg.Close())

	_, _, err = Open(dir, "a", 128, lock.OpenExisting, DestroyOnCloseIfLast)
	require.ErrorIs(t, err, xerrors.ErrInvalidSize)
}

func TestDataSharedAcrossAttaches(t *testing.T) {
	dir := t.TempDir()

	seg1, _, err := Open(dir, "a", 64, lock.OpenOrCreate, DestroyOnCloseIfLast)
	require.NoError(t, err)
	defer seg1.Close()

	seg2, _, err := Open(dir, "a", 64, lock.OpenExisting, DestroyOnCloseIfLast)
	require.NoError(t, err)
	defer seg2.Close()

	seg1.Data()[0] = 0xAB
	require.Equal(t, byte(0xAB), seg2.Data()[0])
}

func TestDestroyOnCloseIfLastRemovesFileOnlyWhenLast(t *testing.T) {
	dir := t.TempDir()

	seg1, _, err := Open(dir, "a", 64, lock.OpenOrCreate, DestroyOnCloseIfLast)
	require.NoError(t, err)

	seg2, _, err := Open(dir, "a", 64, lock.OpenExisting, DestroyOnCloseIfLast)
	require.NoError(t, err)

	require.NoError(t, seg1.Close())
	_, err = os.Stat(dir + "/a.mem")
	require.NoError(t, err, "file should still exist while an attacher remains")

	require.NoError(t, seg2.Close())
	_, err = os.Stat(dir + "/a.mem")
	require.True(t, os.IsNotExist(err), "file should be removed after the last attacher closes")
}

func TestNeverDestroyKeepsFile(t *testing.T) {
	dir := t.TempDir()

	seg, _, err := Open(dir, "a", 64, lock.OpenOrCreate, NeverDestroy)
	require.NoError(t, err)
	require.NoError(t, seg.Close())

	_, err = os.Stat(dir + "/a.mem")
	require.NoError(t, err)
}
