package xerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSentinelsAreDistinct(t *testing.T) {
	all := []error{
		ErrInvalidParameters, ErrMemory, ErrNameTooLong, ErrFail,
		ErrAlreadyExists, ErrDoesNotExist, ErrInvalidSize, ErrCannotOpen,
		ErrCannotAttach, ErrCannotStat, ErrCannotCreateDirectory,
		ErrCannotCreatePath, ErrCannotCreateIPCToken, ErrPathNotDirectory,
		ErrStatsKeyTooLong, ErrCannotAllocateCounter, ErrInvalidHeader,
		ErrInvalidVersion, ErrCannotMap,
	}
	for i, a := range all {
		for j, b := range all {
			if i == j {
				continue
			}
			require.NotErrorIs(t, a, b)
		}
	}
}

func TestWrappedSentinelSurvivesErrorsIs(t *testing.T) {
	wrapped := fmt.Errorf("lock: %s: %w", "mylock", ErrAlreadyExists)
	require.True(t, errors.Is(wrapped, ErrAlreadyExists))
	require.False(t, errors.Is(wrapped, ErrDoesNotExist))
}
