// Package stats implements the cross-process counter table and its
// reader-side snapshot and sampling. The table is a fixed-size
// open-addressed hash over a shared memory segment (pkg/ipc/shm), guarded
// by a named lock (pkg/ipc/lock) during allocation; updates to an already
// allocated counter's value bypass the lock entirely and are pure atomic
// operations on the shared segment.
package stats

import (
	"fmt"
	"sort"
	"sync/atomic"
	"unsafe"

	"github.com/cespare/xxhash/v2"

	"github.com/ja7ad/gostats/pkg/ipc/lock"
	"github.com/ja7ad/gostats/pkg/ipc/shm"
	"github.com/ja7ad/gostats/pkg/xerrors"
)

const (
	// MaxKeyLen is the longest counter name accepted by Allocate.
	MaxKeyLen = 32
	// TableSize is the number of counter slots in the table, a prime chosen
	// to diffuse collisions under the power-of-two probe sequence below.
	TableSize = 2003
	// maxProbes bounds the worst-case allocation cost; beyond this the table
	// is considered too full for a new key.
	maxProbes = 32

	headerSize = 16
	slotSize   = 56

	statusFree      uint32 = 0
	statusClaimed   uint32 = 1
	statusAllocated uint32 = 2
)

// Flag bits carried in a counter slot's Flags field.
const (
	FlagTimer  uint32 = 1 << 0
	FlagGauge  uint32 = 1 << 1
	FlagWidth32 uint32 = 1 << 2 // reserved; width 64 is the only live variant
)

var magicStat = [4]byte{'s', 't', 'a', 't'}

// counterSlot is the 56-byte, 8-byte-aligned on-disk/shared-memory record
// for one counter. Value is the only 8-byte field and sits first so the
// whole array stays naturally aligned without padding.
type counterSlot struct {
	Value            int64
	AllocationSeq    uint32
	AllocationStatus uint32
	Flags            uint32
	KeyLen           uint32
	Key              [MaxKeyLen]byte
}

// tableHeader is the 16-byte header preceding the slot array.
type tableHeader struct {
	Magic          [4]byte
	_              [4]byte
	SequenceNumber uint64
}

// SegmentSize is the total shared-memory size required by a counter table.
const SegmentSize = headerSize + TableSize*slotSize

func init() {
	if unsafe.Sizeof(counterSlot{}) != slotSize {
		panic(fmt.Sprintf("stats: counterSlot size %d, want %d", unsafe.Sizeof(counterSlot{}), slotSize))
	}
	if unsafe.Sizeof(tableHeader{}) != headerSize {
		panic(fmt.Sprintf("stats: tableHeader size %d, want %d", unsafe.Sizeof(tableHeader{}), headerSize))
	}
}

// Table is an open-stats handle: a shared counter-table segment plus the
// named lock that guards its allocation protocol.
type Table struct {
	name    string
	seg     *shm.Segment
	allocL  *lock.Lock
	header  *tableHeader
	slots   []counterSlot
}

// Open creates or attaches the named counter table under dir.
func Open(dir, name string, mode lock.OpenMode) (*Table, error) {
	if len(name) == 0 || len(name) > MaxKeyLen-1 {
		return nil, fmt.Errorf("stats: open %q: %w", name, xerrors.ErrNameTooLong)
	}

	seg, wasCreated, err := shm.Open(dir, name, SegmentSize, mode, shm.DestroyOnCloseIfLast)
	if err != nil {
		return nil, fmt.Errorf("stats: open segment: %w", err)
	}

	allocL, err := lock.Open(dir, name+".alloc", lock.OpenOrCreate)
	if err != nil {
		_ = seg.Close()
		return nil, fmt.Errorf("stats: open allocation lock: %w", err)
	}

	data := seg.Data()
	header := (*tableHeader)(unsafe.Pointer(&data[0]))
	slots := unsafe.Slice((*counterSlot)(unsafe.Pointer(&data[headerSize])), TableSize)

	t := &Table{name: name, seg: seg, allocL: allocL, header: header, slots: slots}

	if wasCreated {
		header.Magic = magicStat
		atomic.StoreUint64(&header.SequenceNumber, 0)
	} else if header.Magic != magicStat {
		_ = t.Close()
		return nil, fmt.Errorf("stats: %s: %w", name, xerrors.ErrInvalidHeader)
	}

	return t, nil
}

// Close detaches from the counter table's segment, destroying it if this
// was the last attacher.
func (t *Table) Close() error {
	err1 := t.seg.Close()
	err2 := t.allocL.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// SequenceNumber returns the table's current sequence number.
func (t *Table) SequenceNumber() uint64 {
	return atomic.LoadUint64(&t.header.SequenceNumber)
}

// CounterRef identifies a single allocated counter slot within a Table. It
// stands in for the source's raw shared-memory pointer: producers cache
// this small value, not an address, and every method dereferences through
// the Table it was issued from.
type CounterRef struct {
	table *Table
	index uint32
}

// Valid reports whether r was issued by a Table (as opposed to a zero value).
func (r CounterRef) Valid() bool { return r.table != nil }

func (r CounterRef) slot() *counterSlot { return &r.table.slots[r.index] }

// Increment atomically adds 1 to the counter's value.
func (r CounterRef) Increment() { r.IncrementBy(1) }

// IncrementBy atomically adds delta to the counter's value.
func (r CounterRef) IncrementBy(delta int64) {
	atomic.AddInt64(&r.slot().Value, delta)
}

// Set atomically stores v as the counter's value.
func (r CounterRef) Set(v int64) {
	atomic.StoreInt64(&r.slot().Value, v)
}

// Clear atomically resets the counter's value to 0.
func (r CounterRef) Clear() { r.Set(0) }

// Value atomically loads the counter's current value.
func (r CounterRef) Value() int64 {
	return atomic.LoadInt64(&r.slot().Value)
}

// Name returns the counter's immutable name.
func (r CounterRef) Name() string {
	s := r.slot()
	n := atomic.LoadUint32(&s.KeyLen)
	return string(s.Key[:n])
}

// AllocationSeq returns the counter's immutable allocation sequence.
func (r CounterRef) AllocationSeq() uint32 {
	return r.slot().AllocationSeq
}

// Flags returns the counter's immutable flag bits.
func (r CounterRef) Flags() uint32 {
	return r.slot().Flags
}

// Allocate claims (or reuses) the slot for name. The store order on a fresh
// claim follows the release/acquire discipline: Key, KeyLen, and
// AllocationSeq are written before the atomic release-store of
// AllocationStatus, which is in turn written before the
// header's SequenceNumber is advanced — see DESIGN.md Open Question 1.
func (t *Table) Allocate(name string, flags uint32) (CounterRef, error) {
	keyLen := len(name)
	if keyLen == 0 || keyLen > MaxKeyLen {
		return CounterRef{}, fmt.Errorf("stats: allocate %q: %w", name, xerrors.ErrStatsKeyTooLong)
	}

	if err := t.allocL.Acquire(); err != nil {
		return CounterRef{}, fmt.Errorf("stats: allocate: acquire lock: %w", err)
	}
	defer func() { _ = t.allocL.Release() }()

	h := xxhash.Sum64(unsafe.Slice(unsafe.StringData(name), keyLen))

	for i := 0; i < maxProbes; i++ {
		idx := ProbeSequence(h, TableSize, i)
		slot := &t.slots[idx]

		status := atomic.LoadUint32(&slot.AllocationStatus)
		switch status {
		case statusFree:
			seq := atomic.LoadUint64(&t.header.SequenceNumber)
			slot.KeyLen = uint32(keyLen)
			copy(slot.Key[:], name)
			slot.AllocationSeq = uint32(seq)
			slot.Flags = flags
			atomic.StoreInt64(&slot.Value, 0)
			atomic.StoreUint32(&slot.AllocationStatus, statusAllocated)
			atomic.AddUint64(&t.header.SequenceNumber, 1)
			return CounterRef{table: t, index: uint32(idx)}, nil
		case statusAllocated:
			if int(slot.KeyLen) == keyLen && string(slot.Key[:keyLen]) == name {
				return CounterRef{table: t, index: uint32(idx)}, nil
			}
		}
	}

	return CounterRef{}, fmt.Errorf("stats: allocate %q: %w", name, xerrors.ErrCannotAllocateCounter)
}

// CounterList is a reader-side ordered snapshot of allocated counter
// references, valid as long as the table's sequence number has not
// advanced since the last Refresh.
type CounterList struct {
	seqNo uint64
	refs  []CounterRef
}

// Count returns the number of counters captured in the list.
func (cl *CounterList) Count() int { return len(cl.refs) }

// Ref returns the i-th counter reference in canonical allocation order.
func (cl *CounterList) Ref(i int) CounterRef { return cl.refs[i] }

// IsUpdated reports whether the table's sequence number has advanced since
// cl was last refreshed (i.e. whether new counters may exist).
func (t *Table) IsUpdated(cl *CounterList) bool {
	return cl.seqNo != atomic.LoadUint64(&t.header.SequenceNumber)
}

// Refresh rescans the full table under the allocation lock, capturing every
// allocated slot and sorting the result by allocation sequence ascending.
// This guarantees the same ordering across all readers and that newly
// allocated counters only ever appear at the tail of a subsequent refresh.
func (t *Table) Refresh(cl *CounterList) error {
	if err := t.allocL.Acquire(); err != nil {
		return fmt.Errorf("stats: refresh: acquire lock: %w", err)
	}

	refs := make([]CounterRef, 0, TableSize)
	for i := 0; i < TableSize; i++ {
		if atomic.LoadUint32(&t.slots[i].AllocationStatus) == statusAllocated {
			refs = append(refs, CounterRef{table: t, index: uint32(i)})
		}
	}
	seq := atomic.LoadUint64(&t.header.SequenceNumber)

	if err := t.allocL.Release(); err != nil {
		return fmt.Errorf("stats: refresh: release lock: %w", err)
	}

	sort.Slice(refs, func(i, j int) bool {
		return refs[i].AllocationSeq() < refs[j].AllocationSeq()
	})

	cl.refs = refs
	cl.seqNo = seq
	return nil
}

// Sample is a {sequence_no, timestamp, count, values[]} capture of every
// counter in a CounterList at one point in time, taken via per-slot atomic
// loads with no locking.
type Sample struct {
	seqNo      uint64
	sampleTime int64
	values     []int64
	names      []string
}

// SampleTime returns the monotonic-nanosecond time the sample was taken.
func (s *Sample) SampleTime() int64 { return s.sampleTime }

// Count returns the number of values in the sample.
func (s *Sample) Count() int { return len(s.values) }

// Value returns the i-th counter's value at sample time.
func (s *Sample) Value(i int) int64 { return s.values[i] }

// Name returns the i-th counter's name.
func (s *Sample) Name(i int) string { return s.names[i] }

// Delta returns the change in the i-th counter's value between prev and s.
// The two samples must share a counter-list generation (same seqNo); taking
// a delta across generations is a programming error, not a runtime
// condition to recover from, so it panics rather than returning a bogus
// number.
func (s *Sample) Delta(prev *Sample, i int) int64 {
	if s.seqNo != prev.seqNo {
		panic("stats: Delta across different counter-list generations")
	}
	return s.values[i] - prev.values[i]
}

// Sample captures the current value of every counter in cl, refreshing cl
// first if it is stale.
func (t *Table) Sample(cl *CounterList, nowNanos int64) (*Sample, error) {
	if t.IsUpdated(cl) {
		if err := t.Refresh(cl); err != nil {
			return nil, err
		}
	}

	values := make([]int64, len(cl.refs))
	names := make([]string, len(cl.refs))
	for i, ref := range cl.refs {
		values[i] = ref.Value()
		names[i] = ref.Name()
	}

	return &Sample{seqNo: cl.seqNo, sampleTime: nowNanos, values: values, names: names}, nil
}

// ProbeSequence returns the i-th probe index (i = 0..probes-1) of the
// power-of-two displacement sequence, generalized to an arbitrary table
// size. The ingest metric index reuses this so both tables are backed by
// the same open-addressed probe scheme.
func ProbeSequence(hash uint64, tableSize uint64, i int) uint64 {
	disp := uint64(1) << uint(i)
	return (hash + disp - 1) % tableSize
}
