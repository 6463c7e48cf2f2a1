package pool

import (
	"bytes"
	"sync"
)

// BytesBuffer is a strongly typed wrapper around a sync.Pool for *bytes.Buffer
type BytesBuffer struct {
	p sync.Pool
}

// NewBytesBuffer creates a pool of buffers which start with size bytes of capacity.
func NewBytesBuffer(size int) *BytesBuffer {
	return &BytesBuffer{
		p: sync.Pool{
			New: func() interface{} {
				buf := &bytes.Buffer{}
				buf.Grow(size)
				return buf
			},
		},
	}
}

// Get returns an empty buffer.
func (p *BytesBuffer) Get() *bytes.Buffer {
	buffer := p.p.Get().(*bytes.Buffer)
	buffer.Reset()
	return buffer
}

// Put returns a buffer to the pool.  It must not be used afterwards.
func (p *BytesBuffer) Put(b *bytes.Buffer) {
	p.p.Put(b)
}
