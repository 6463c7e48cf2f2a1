package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytesBufferGetIsEmpty(t *testing.T) {
	t.Parallel()
	p := NewBytesBuffer(128)
	buf := p.Get()
	assert.Zero(t, buf.Len())
	assert.GreaterOrEqual(t, buf.Cap(), 128)

	buf.WriteString("put kairos 1 1.0\n")
	p.Put(buf)
	assert.Zero(t, p.Get().Len())
}
