package fifo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFifoWrite(t *testing.T) {
	fifo := NewFifo(100)
	assert.Equal(t, 5, fifo.Write([]byte{1, 2, 3, 4, 5}))
	assert.Equal(t, 5, fifo.Occupied())
	assert.Equal(t, 94, fifo.Write(make([]byte, 500)))
	assert.Equal(t, 0, fifo.Space())
	assert.Equal(t, 0, fifo.Write([]byte{1}))

	// Free up some space by reading then re writing
	assert.Equal(t, 10, fifo.Read(make([]byte, 10)))
	assert.Equal(t, 10, fifo.Write(make([]byte, 10)))
}

func TestFifoRead(t *testing.T) {
	fifo := NewFifo(100)
	buffer := make([]byte, 10)
	assert.Equal(t, 0, fifo.Read(buffer))

	fifo.Write([]byte{1, 2, 3})
	assert.Equal(t, 3, fifo.Read(buffer))
	assert.Equal(t, []byte{1, 2, 3}, buffer[:3])
	assert.Equal(t, 0, fifo.Occupied())
}

func TestFifoPeekDiscard(t *testing.T) {
	fifo := NewFifo(8)
	fifo.Write([]byte{1, 2, 3, 4, 5, 6})
	fifo.Discard(4)
	// Wraps around the end of the buffer
	assert.Equal(t, 5, fifo.Write([]byte{7, 8, 9, 10, 11}))
	buffer := make([]byte, 16)
	n := fifo.Peek(buffer)
	assert.Equal(t, []byte{5, 6, 7, 8, 9, 10, 11}, buffer[:n])
	assert.Equal(t, 7, fifo.Occupied())

	assert.Equal(t, 2, fifo.Discard(2))
	assert.Equal(t, 5, fifo.Discard(10))
	assert.Equal(t, 0, fifo.Occupied())
	fifo.Write([]byte{1})
	fifo.Reset()
	assert.Equal(t, 0, fifo.Peek(buffer))
}
