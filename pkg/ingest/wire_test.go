package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeUpdateRoundTrip(t *testing.T) {
	metrics := []MetricUpdate{
		{Name: "cpu.user", Value: 42},
		{Name: "mem.rss", Value: 123456789},
	}

	b := EncodeUpdate(1000, metrics)
	ts, got, err := DecodeUpdate(b)
	require.NoError(t, err)
	require.Equal(t, uint32(1000), ts)
	require.Equal(t, metrics, got)
}

func TestDecodeUpdateRejectsShortDatagram(t *testing.T) {
	_, _, err := DecodeUpdate([]byte{0, 0, 0, 1})
	require.Error(t, err)
}

func TestDecodeUpdateRejectsUnknownType(t *testing.T) {
	b := EncodeUpdate(1, nil)
	b[3] = 2 // mutate message_type's low byte to an unknown type
	_, _, err := DecodeUpdate(b)
	require.Error(t, err)
}

func TestDecodeUpdateRejectsOversizedMetricCount(t *testing.T) {
	b := EncodeUpdate(1, []MetricUpdate{{Name: "m", Value: 1}})
	// Claim far more metrics than the datagram actually carries.
	b[12], b[13], b[14], b[15] = 0, 0, 0xFF, 0xFF
	_, _, err := DecodeUpdate(b)
	require.Error(t, err)
}

func TestEncodeUpdateTruncatesLongNames(t *testing.T) {
	longName := "this-metric-name-is-definitely-longer-than-32-bytes"
	b := EncodeUpdate(1, []MetricUpdate{{Name: longName, Value: 7}})
	_, got, err := DecodeUpdate(b)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, longName[:metricNameLen], got[0].Name)
}
