// Package memory provides the Arrow allocator used to build result records.
package memory

import (
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow/memory"
)

// GaugeRecorder receives allocator gauges.
type GaugeRecorder interface {
	RecordGauge(name string, value float64, labels ...string)
}

// TrackedAllocator wraps a memory.Allocator and tracks live and peak bytes.
type TrackedAllocator struct {
	underlying  memory.Allocator
	bytesUsed   atomic.Int64
	peak        atomic.Int64
	allocations atomic.Int64
}

// NewTrackedAllocator creates a new TrackedAllocator. A nil underlying
// allocator means the Go allocator.
func NewTrackedAllocator(underlying memory.Allocator) *TrackedAllocator {
	if underlying == nil {
		underlying = memory.NewGoAllocator()
	}
	return &TrackedAllocator{
		underlying: underlying,
	}
}

// Allocate implements memory.Allocator interface
func (a *TrackedAllocator) Allocate(size int) []byte {
	a.allocations.Add(1)
	a.grow(int64(size))
	return a.underlying.Allocate(size)
}

// Reallocate implements memory.Allocator interface
func (a *TrackedAllocator) Reallocate(size int, b []byte) []byte {
	a.grow(int64(size - len(b)))
	return a.underlying.Reallocate(size, b)
}

// Free implements memory.Allocator interface
func (a *TrackedAllocator) Free(b []byte) {
	a.bytesUsed.Add(-int64(len(b)))
	a.underlying.Free(b)
}

func (a *TrackedAllocator) grow(delta int64) {
	used := a.bytesUsed.Add(delta)
	for {
		peak := a.peak.Load()
		if used <= peak || a.peak.CompareAndSwap(peak, used) {
			return
		}
	}
}

// BytesUsed returns the current number of bytes allocated
func (a *TrackedAllocator) BytesUsed() int64 {
	return a.bytesUsed.Load()
}

// PeakBytes returns the highest BytesUsed seen so far.
func (a *TrackedAllocator) PeakBytes() int64 {
	return a.peak.Load()
}

// Allocations returns the number of Allocate calls.
func (a *TrackedAllocator) Allocations() int64 {
	return a.allocations.Load()
}

// Report publishes the allocator gauges.
func (a *TrackedAllocator) Report(r GaugeRecorder) {
	r.RecordGauge("arrow_allocator_bytes_used", float64(a.BytesUsed()))
	r.RecordGauge("arrow_allocator_bytes_peak", float64(a.PeakBytes()))
}
