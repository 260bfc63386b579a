package ingest

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/ja7ad/gostats/pkg/history"
	"github.com/ja7ad/gostats/pkg/stats"
	"github.com/ja7ad/gostats/pkg/xerrors"
)

// DefaultIndexCapacity is the default metric-index table size.
const DefaultIndexCapacity = 3001

const maxIndexProbes = 32

type indexSlot struct {
	used bool
	name string
	file *history.File
}

// MetricIndex is a single-threaded, open-addressed map from metric name to
// open history file, owned by a Listener's one event-loop goroutine. It
// needs no locking of its own.
type MetricIndex struct {
	slots    []indexSlot
	capacity uint64
	open     func(metric string) (*history.File, error)
}

// NewMetricIndex builds an index of the given capacity, using open to
// create/fetch a metric's history.File on first reference.
func NewMetricIndex(capacity int, open func(metric string) (*history.File, error)) *MetricIndex {
	if capacity <= 0 {
		capacity = DefaultIndexCapacity
	}
	return &MetricIndex{
		slots:    make([]indexSlot, capacity),
		capacity: uint64(capacity),
		open:     open,
	}
}

// Get returns the open history.File for metric, opening it via the index's
// open func on first reference and caching the result for subsequent calls.
func (idx *MetricIndex) Get(metric string) (*history.File, error) {
	h := xxhash.Sum64String(metric)

	for i := 0; i < maxIndexProbes; i++ {
		slot := stats.ProbeSequence(h, idx.capacity, i)
		s := &idx.slots[slot]

		if !s.used {
			f, err := idx.open(metric)
			if err != nil {
				return nil, err
			}
			s.used = true
			s.name = metric
			s.file = f
			return f, nil
		}
		if s.name == metric {
			return s.file, nil
		}
	}

	return nil, fmt.Errorf("ingest: index full after %d probes for %q: %w", maxIndexProbes, metric, xerrors.ErrCannotAllocateCounter)
}

// Close closes every history file the index has opened.
func (idx *MetricIndex) Close() error {
	var firstErr error
	for i := range idx.slots {
		if idx.slots[i].used {
			if err := idx.slots[i].file.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
