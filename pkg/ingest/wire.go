// Package ingest implements the UDP datagram wire protocol, a
// single-threaded per-metric history file index, and the event-loop
// listener that ties the two together.
package ingest

import (
	"encoding/binary"
	"fmt"

	"github.com/ja7ad/gostats/pkg/xerrors"
)

// MessageType identifies the datagram's payload kind. UPDATE is currently
// the only defined type.
type MessageType uint32

// MessageTypeUpdate is the only message type the current protocol version
// defines.
const MessageTypeUpdate MessageType = 1

const (
	messageHeaderSize = 8  // Type, Length
	updateHeaderSize  = 8  // TimestampSeconds, MetricCount
	metricNameLen     = 32
	metricRecordSize  = metricNameLen + 8 // Name + u64 Value
)

// MetricUpdate is one metric reading carried in an UPDATE datagram.
type MetricUpdate struct {
	Name  string
	Value uint64
}

// DecodeUpdate parses an UPDATE datagram, validating metric_count against
// the actual datagram length before indexing into it rather than trusting
// the message_length field the producer sent.
func DecodeUpdate(b []byte) (ts uint32, metrics []MetricUpdate, err error) {
	if len(b) < messageHeaderSize+updateHeaderSize {
		return 0, nil, fmt.Errorf("ingest: datagram too short (%d bytes): %w", len(b), xerrors.ErrInvalidParameters)
	}

	msgType := binary.BigEndian.Uint32(b[0:4])
	if MessageType(msgType) != MessageTypeUpdate {
		return 0, nil, fmt.Errorf("ingest: unknown message type %d: %w", msgType, xerrors.ErrInvalidParameters)
	}

	ts = binary.BigEndian.Uint32(b[8:12])
	count := binary.BigEndian.Uint32(b[12:16])

	needed := messageHeaderSize + updateHeaderSize + int(count)*metricRecordSize
	if needed > len(b) {
		return 0, nil, fmt.Errorf("ingest: metric_count %d needs %d bytes, datagram has %d: %w",
			count, needed, len(b), xerrors.ErrInvalidParameters)
	}

	metrics = make([]MetricUpdate, count)
	off := messageHeaderSize + updateHeaderSize
	for i := uint32(0); i < count; i++ {
		rec := b[off : off+metricRecordSize]
		metrics[i] = MetricUpdate{
			Name:  nulTerminatedString(rec[:metricNameLen]),
			Value: binary.BigEndian.Uint64(rec[metricNameLen:]),
		}
		off += metricRecordSize
	}

	return ts, metrics, nil
}

// EncodeUpdate builds an UPDATE datagram for ts and metrics, the counterpart
// cmd/statsclient uses to build outgoing packets.
func EncodeUpdate(ts uint32, metrics []MetricUpdate) []byte {
	size := messageHeaderSize + updateHeaderSize + len(metrics)*metricRecordSize
	b := make([]byte, size)

	binary.BigEndian.PutUint32(b[0:4], uint32(MessageTypeUpdate))
	binary.BigEndian.PutUint32(b[4:8], uint32(messageHeaderSize+updateHeaderSize))
	binary.BigEndian.PutUint32(b[8:12], ts)
	binary.BigEndian.PutUint32(b[12:16], uint32(len(metrics)))

	off := messageHeaderSize + updateHeaderSize
	for _, m := range metrics {
		rec := b[off : off+metricRecordSize]
		n := copy(rec[:metricNameLen], m.Name)
		for i := n; i < metricNameLen; i++ {
			rec[i] = 0
		}
		binary.BigEndian.PutUint64(rec[metricNameLen:], m.Value)
		off += metricRecordSize
	}

	return b
}

func nulTerminatedString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
