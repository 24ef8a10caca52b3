package util

import "sync"

// BoundedBuffer is a concurrency-safe byte buffer that keeps at most maxSize
// bytes, discarding the oldest data on overflow. Capture and encode processes
// write their stderr here so the last lines survive for error classification
// without unbounded growth.
type BoundedBuffer struct {
	data    []byte
	maxSize int
	mu      sync.Mutex
}

// NewBoundedBuffer returns an empty buffer capped at maxSize bytes.
func NewBoundedBuffer(maxSize int) *BoundedBuffer {
	return &BoundedBuffer{
		data:    make([]byte, 0, maxSize),
		maxSize: maxSize,
	}
}

// Write implements io.Writer. Writes never fail; they evict the oldest bytes
// instead when the cap is hit.
func (b *BoundedBuffer) Write(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n = len(p)
	if n >= b.maxSize {
		b.data = make([]byte, b.maxSize)
		copy(b.data, p[n-b.maxSize:])
		return n, nil
	}

	if overflow := len(b.data) + n - b.maxSize; overflow > 0 {
		b.data = b.data[overflow:]
	}
	b.data = append(b.data, p...)
	return n, nil
}

// String returns the retained contents.
func (b *BoundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}

// Reset clears the buffer.
func (b *BoundedBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = b.data[:0]
}
