package pool

import (
	"bytes"
	"sync"
)

// maxPooledBuffer caps the capacity of buffers returned to the pool.
const maxPooledBuffer = 64 << 20

// BufferPool recycles scratch buffers by power-of-two size class.
type BufferPool struct {
	pools map[int]*sync.Pool
	mu    sync.RWMutex
}

// NewBufferPool creates an empty BufferPool.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		pools: make(map[int]*sync.Pool),
	}
}

// Get returns an empty buffer with capacity for at least size bytes.
func (p *BufferPool) Get(size int) *bytes.Buffer {
	class := nextPowerOfTwo(size)
	buf := p.class(class).Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// Put hands buf back for reuse. Oversized buffers are dropped.
func (p *BufferPool) Put(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() == 0 || buf.Cap() > maxPooledBuffer {
		return
	}

	// Store under the largest class the buffer fully covers.
	class := nextPowerOfTwo(buf.Cap())
	if class > buf.Cap() {
		class >>= 1
	}

	p.mu.RLock()
	pl := p.pools[class]
	p.mu.RUnlock()

	if pl != nil {
		buf.Reset()
		pl.Put(buf)
	}
}

func (p *BufferPool) class(size int) *sync.Pool {
	p.mu.RLock()
	pl, ok := p.pools[size]
	p.mu.RUnlock()
	if ok {
		return pl
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if pl, ok = p.pools[size]; !ok {
		pl = &sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, size))
			},
		}
		p.pools[size] = pl
	}
	return pl
}

// nextPowerOfTwo returns the next power of 2 >= n
func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	n++
	return n
}
