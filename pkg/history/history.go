// Package history implements a memory-mapped, multi-resolution
// ring-buffer file recording one metric's samples over time. Only the
// highest-resolution series (index 0) is written by AddSample; the
// remaining four are reserved for future downsampling and stay zeroed.
package history

import (
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ja7ad/gostats/pkg/ipc/lock"
	"github.com/ja7ad/gostats/pkg/xerrors"
)

// NSeries is the number of resolution tiers a history file holds.
const NSeries = 5

// SeriesResolution is the nominal sampling interval of each series. Only
// SeriesResolution[0] (one sample per second) is populated by this version;
// the rest describe the downsampled tiers a future version would fill.
var SeriesResolution = [NSeries]uint32{1, 10, 60, 600, 3600}

// SeriesCapacity is the ring length, in samples, of each series.
var SeriesCapacity = [NSeries]uint32{900, 720, 1440, 1008, 720}

const (
	magicVersion = 1
	headerSize   = 16
	sampleSize   = 16
	lenArrSize   = NSeries * 4
	headArrSize  = NSeries * 4

	// samplesOffset is where the first series' sample array starts: the
	// header plus both length/head arrays. 16+20+20 == 56, already an
	// 8-byte multiple, so no additional padding is required in practice.
	samplesOffset = headerSize + lenArrSize + headArrSize
)

var magicHist = [4]byte{'h', 'i', 's', 't'}

type fileHeader struct {
	Magic   [4]byte
	Version uint32
	NSeries uint32
	_       [4]byte
}

type sample struct {
	SampleTime uint32
	_          uint32
	Value      int64
}

func init() {
	if unsafe.Sizeof(fileHeader{}) != headerSize {
		panic("history: fileHeader size mismatch")
	}
	if unsafe.Sizeof(sample{}) != sampleSize {
		panic("history: sample size mismatch")
	}
}

func fileSize() int64 {
	total := int64(samplesOffset)
	for i := 0; i < NSeries; i++ {
		total += int64(SeriesCapacity[i]) * sampleSize
	}
	return total
}

// Point is a single (time, value) reading returned by Series.
type Point struct {
	Time  uint32
	Value int64
}

// File is an open, memory-mapped history file for one metric.
type File struct {
	metric string
	path   string
	fd     int
	data   []byte

	header      *fileHeader
	seriesLen   []uint32
	seriesHead  []uint32
	seriesStart [NSeries]int // byte offset of each series' sample array
}

// Open opens or creates "<metric>.mhf" under dir. First-time creation is
// guarded by a paired advisory lock so two processes racing to create the
// same metric's file don't corrupt the initial template.
func Open(dir, metric string) (*File, error) {
	path := filepath.Join(dir, metric+".mhf")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("history: mkdir %s: %w", dir, xerrors.ErrCannotCreateDirectory)
	}

	tok, err := lock.Open(dir, metric+".mhf", lock.OpenOrCreate)
	if err != nil {
		return nil, fmt.Errorf("history: paired lock: %w", err)
	}
	if err := tok.Acquire(); err != nil {
		_ = tok.Close()
		return nil, fmt.Errorf("history: acquire paired lock: %w", err)
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0o644)
	if err != nil {
		_ = tok.Release()
		_ = tok.Close()
		return nil, fmt.Errorf("history: open %s: %w: %v", path, xerrors.ErrCannotOpen, err)
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		_ = unix.Close(fd)
		_ = tok.Release()
		_ = tok.Close()
		return nil, fmt.Errorf("history: fstat %s: %w", path, xerrors.ErrCannotStat)
	}

	size := fileSize()
	wasCreated := st.Size == 0
	if wasCreated {
		if err := unix.Ftruncate(fd, size); err != nil {
			_ = unix.Close(fd)
			_ = tok.Release()
			_ = tok.Close()
			return nil, fmt.Errorf("history: truncate %s: %w", path, xerrors.ErrMemory)
		}
	} else if st.Size != size {
		_ = unix.Close(fd)
		_ = tok.Release()
		_ = tok.Close()
		return nil, fmt.Errorf("history: %s has size %d, want %d: %w", path, st.Size, size, xerrors.ErrInvalidSize)
	}

	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		_ = tok.Release()
		_ = tok.Close()
		return nil, fmt.Errorf("history: mmap %s: %w: %v", path, xerrors.ErrCannotAttach, err)
	}

	f := &File{
		metric: metric,
		path:   path,
		fd:     fd,
		data:   data,
		header: (*fileHeader)(unsafe.Pointer(&data[0])),
	}
	f.seriesLen = unsafe.Slice((*uint32)(unsafe.Pointer(&data[headerSize])), NSeries)
	f.seriesHead = unsafe.Slice((*uint32)(unsafe.Pointer(&data[headerSize+lenArrSize])), NSeries)

	off := samplesOffset
	for i := 0; i < NSeries; i++ {
		f.seriesStart[i] = off
		off += int(SeriesCapacity[i]) * sampleSize
	}

	if wasCreated {
		f.header.Magic = magicHist
		f.header.Version = magicVersion
		f.header.NSeries = NSeries
		for i := 0; i < NSeries; i++ {
			f.seriesLen[i] = SeriesCapacity[i]
			f.seriesHead[i] = 0
		}
	} else if err := f.validateHeader(); err != nil {
		_ = unix.Munmap(data)
		_ = unix.Close(fd)
		_ = tok.Release()
		_ = tok.Close()
		return nil, err
	}

	if err := tok.Release(); err != nil {
		_ = unix.Munmap(data)
		_ = unix.Close(fd)
		_ = tok.Close()
		return nil, fmt.Errorf("history: release paired lock: %w", err)
	}
	if err := tok.Close(); err != nil {
		_ = unix.Munmap(data)
		_ = unix.Close(fd)
		return nil, fmt.Errorf("history: close paired lock: %w", err)
	}

	return f, nil
}

func (f *File) validateHeader() error {
	if f.header.Magic != magicHist {
		return fmt.Errorf("history: %s: %w", f.path, xerrors.ErrInvalidHeader)
	}
	if f.header.Version != magicVersion {
		return fmt.Errorf("history: %s: %w", f.path, xerrors.ErrInvalidVersion)
	}
	if f.header.NSeries != NSeries {
		return fmt.Errorf("history: %s: %w", f.path, xerrors.ErrInvalidHeader)
	}
	return nil
}

func (f *File) samples(series int) []sample {
	base := f.seriesStart[series]
	return unsafe.Slice((*sample)(unsafe.Pointer(&f.data[base])), SeriesCapacity[series])
}

// AddSample records one (timestamp, value) reading in the highest-resolution
// series, filling any gap since the last write with zero-valued samples, and
// silently dropping late-arriving or duplicate timestamps.
func (f *File) AddSample(ts uint32, value int64) error {
	const series = 0
	samples := f.samples(series)
	length := f.seriesLen[series]
	head := f.seriesHead[series]

	lastSlot := (head + length - 1) % length
	lastTS := samples[lastSlot].SampleTime

	if lastTS != 0 && ts <= lastTS {
		return nil
	}

	write := func(t uint32, v int64) {
		samples[head].SampleTime = t
		samples[head].Value = v
		head = (head + 1) % length
	}

	switch {
	case lastTS == 0:
		write(ts, value)
	case ts == lastTS+1:
		write(ts, value)
	default:
		n := ts - lastTS - 1
		for i := uint32(0); i < n; i++ {
			write(lastTS+i+1, 0)
		}
		write(ts, value)
	}

	f.seriesHead[series] = head
	return nil
}

// Series returns series index's recorded points, newest-first.
func (f *File) Series(index int) ([]Point, error) {
	if index < 0 || index >= NSeries {
		return nil, fmt.Errorf("history: series %d: %w", index, xerrors.ErrInvalidParameters)
	}

	samples := f.samples(index)
	length := f.seriesLen[index]
	head := f.seriesHead[index]

	points := make([]Point, 0, length)
	for i := uint32(1); i <= length; i++ {
		idx := (head + length - i) % length
		s := samples[idx]
		if s.SampleTime == 0 {
			break
		}
		points = append(points, Point{Time: s.SampleTime, Value: s.Value})
	}
	return points, nil
}

// Close unmaps the file and closes its descriptor.
func (f *File) Close() error {
	if err := unix.Munmap(f.data); err != nil {
		return fmt.Errorf("history: munmap %s: %w", f.path, err)
	}
	f.data = nil
	return unix.Close(f.fd)
}
