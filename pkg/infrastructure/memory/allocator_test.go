package memory

import (
	"sync"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gaugeSink struct {
	values map[string]float64
}

func (g *gaugeSink) RecordGauge(name string, value float64, labels ...string) {
	g.values[name] = value
}

func TestTrackedAllocator(t *testing.T) {
	underlying := memory.NewGoAllocator()

	t.Run("Allocate", func(t *testing.T) {
		allocator := NewTrackedAllocator(underlying)
		assert.Equal(t, int64(0), allocator.BytesUsed())

		buf := allocator.Allocate(1024)
		require.NotNil(t, buf)
		assert.Equal(t, 1024, len(buf))
		assert.Equal(t, int64(1024), allocator.BytesUsed())

		allocator.Allocate(1024)
		assert.Equal(t, int64(2048), allocator.BytesUsed())
		assert.Equal(t, int64(2), allocator.Allocations())
	})

	t.Run("Reallocate", func(t *testing.T) {
		allocator := NewTrackedAllocator(underlying)

		buf := allocator.Allocate(512)
		buf = allocator.Reallocate(1024, buf)
		require.NotNil(t, buf)
		assert.Equal(t, int64(1024), allocator.BytesUsed())

		buf = allocator.Reallocate(256, buf)
		assert.Equal(t, 256, len(buf))
		assert.Equal(t, int64(256), allocator.BytesUsed())
		assert.Equal(t, int64(1024), allocator.PeakBytes())
	})

	t.Run("Free", func(t *testing.T) {
		allocator := NewTrackedAllocator(underlying)

		buf1 := allocator.Allocate(1024)
		buf2 := allocator.Allocate(1024)
		allocator.Free(buf1)
		assert.Equal(t, int64(1024), allocator.BytesUsed())
		allocator.Free(buf2)
		assert.Equal(t, int64(0), allocator.BytesUsed())
		assert.Equal(t, int64(2048), allocator.PeakBytes())
	})

	t.Run("NilUnderlying", func(t *testing.T) {
		allocator := NewTrackedAllocator(nil)
		buf := allocator.Allocate(64)
		assert.Len(t, buf, 64)
		allocator.Free(buf)
	})

	t.Run("Report", func(t *testing.T) {
		allocator := NewTrackedAllocator(underlying)
		allocator.Allocate(128)

		sink := &gaugeSink{values: map[string]float64{}}
		allocator.Report(sink)
		assert.Equal(t, 128.0, sink.values["arrow_allocator_bytes_used"])
		assert.Equal(t, 128.0, sink.values["arrow_allocator_bytes_peak"])
	})

	t.Run("ConcurrentAllocation", func(t *testing.T) {
		allocator := NewTrackedAllocator(underlying)
		var wg sync.WaitGroup

		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				buf := allocator.Allocate(1024)
				allocator.Free(buf)
			}()
		}
		wg.Wait()

		assert.Equal(t, int64(0), allocator.BytesUsed())
		assert.LessOrEqual(t, allocator.PeakBytes(), int64(10*1024))
	})
}
