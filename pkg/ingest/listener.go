package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sys/unix"

	"github.com/ja7ad/gostats/pkg/history"
)

// DefaultUDPPort is the port the history daemon listens on by default.
const DefaultUDPPort = 7010

const readBufferBytes = 1 << 20 // 1 MiB

// Listener is the UDP event-loop task: one goroutine owns the socket and
// the metric index, so neither needs synchronization of its own.
type Listener struct {
	conn   *net.UDPConn
	index  *MetricIndex
	logger log.Logger
}

// NewListener binds a UDP socket on port with SO_REUSEADDR set, and wires a
// MetricIndex that opens history files under historyDir via open.
func NewListener(port int, historyDir string, indexCapacity int, logger log.Logger, open func(metric string) (*history.File, error)) (*Listener, error) {
	if port <= 0 {
		port = DefaultUDPPort
	}

	addr := &net.UDPAddr{Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("ingest: listen udp :%d: %w", port, err)
	}

	if err := setReuseAddr(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ingest: set SO_REUSEADDR: %w", err)
	}
	if err := conn.SetReadBuffer(readBufferBytes); err != nil {
		level.Warn(logger).Log("msg", "set read buffer failed", "err", err)
	}

	return &Listener{
		conn:   conn,
		index:  NewMetricIndex(indexCapacity, open),
		logger: logger,
	}, nil
}

func setReuseAddr(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}); err != nil {
		return err
	}
	return sockErr
}

// Run reads datagrams until ctx is cancelled or the socket errors. Each
// datagram is decoded and applied metric-by-metric; a per-metric failure is
// logged and does not abort the rest of the batch.
func (l *Listener) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = l.conn.Close()
	}()

	buf := make([]byte, 64*1024)
	for {
		n, addr, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			level.Error(l.logger).Log("msg", "udp read failed", "err", err)
			return fmt.Errorf("ingest: read udp: %w", err)
		}

		level.Debug(l.logger).Log("msg", "datagram received", "from", addr, "bytes", n)
		l.handleDatagram(buf[:n])
	}
}

func (l *Listener) handleDatagram(b []byte) {
	ts, metrics, err := DecodeUpdate(b)
	if err != nil {
		level.Error(l.logger).Log("msg", "decode failed", "err", err)
		return
	}

	for _, m := range metrics {
		f, err := l.index.Get(m.Name)
		if err != nil {
			level.Error(l.logger).Log("msg", "open history file failed", "metric", m.Name, "err", err)
			continue
		}
		if err := f.AddSample(ts, int64(m.Value)); err != nil {
			level.Error(l.logger).Log("msg", "add sample failed", "metric", m.Name, "err", err)
			continue
		}
	}
}

// Close releases the listener's socket and every history file its index has
// opened.
func (l *Listener) Close() error {
	closeErr := l.conn.Close()
	if err := l.index.Close(); err != nil && closeErr == nil {
		closeErr = err
	}
	return closeErr
}
