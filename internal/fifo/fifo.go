package fifo

// Circular byte buffer used to reassemble records received from a byte
// stream. One slot is kept free to tell a full buffer from an empty one.
type Fifo struct {
	buffer   []byte
	writePos int
	readPos  int
}

func NewFifo(size uint16) *Fifo {
	return &Fifo{buffer: make([]byte, size)}
}

func (f *Fifo) Reset() {
	f.readPos = 0
	f.writePos = 0
}

// Free space in bytes
func (f *Fifo) Space() int {
	return len(f.buffer) - 1 - f.Occupied()
}

func (f *Fifo) Occupied() int {
	occupied := f.writePos - f.readPos
	if occupied < 0 {
		occupied += len(f.buffer)
	}
	return occupied
}

// Write as much of data as fits and return the number of bytes written
func (f *Fifo) Write(data []byte) int {
	written := 0
	for _, b := range data {
		next := (f.writePos + 1) % len(f.buffer)
		if next == f.readPos {
			break
		}
		f.buffer[f.writePos] = b
		f.writePos = next
		written++
	}
	return written
}

// Copy up to len(buffer) bytes without consuming them
func (f *Fifo) Peek(buffer []byte) int {
	pos := f.readPos
	n := 0
	for n < len(buffer) && pos != f.writePos {
		buffer[n] = f.buffer[pos]
		pos = (pos + 1) % len(f.buffer)
		n++
	}
	return n
}

// Drop up to n bytes and return the number of bytes dropped
func (f *Fifo) Discard(n int) int {
	n = min(n, f.Occupied())
	f.readPos = (f.readPos + n) % len(f.buffer)
	return n
}

// Peek then discard
func (f *Fifo) Read(buffer []byte) int {
	return f.Discard(f.Peek(buffer))
}
