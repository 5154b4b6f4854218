// Package ringbuf provides a fixed-capacity rolling window of float64 values
// for windowed indicators. Storage is rounded up to a power of two so slot
// lookup is a bitwise mask, while the logical window keeps the exact capacity
// requested. Push evicts the oldest value once the window is full, and
// ReplaceLast rewrites the newest slot in place so a revised bar costs O(1).
//
// Not safe for concurrent use; the engine drives it from a single goroutine.
package ringbuf

// Buffer is a rolling window over the most recent Cap() values.
type Buffer struct {
	buf      []float64
	mask     uint64
	capacity int
	head     uint64 // total pushes

	// Value dropped by the most recent Push, kept so a revision of the
	// newest slot can undo the eviction arithmetic.
	evicted    float64
	hasEvicted bool
}

// New creates a rolling window holding capacity values. Minimum capacity is 1.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	size := nextPow2(capacity)
	return &Buffer{
		buf:      make([]float64, size),
		mask:     uint64(size - 1),
		capacity: capacity,
	}
}

// Push appends v as the newest value. When the window was already full the
// oldest value is evicted and returned with ok=true.
func (b *Buffer) Push(v float64) (evicted float64, ok bool) {
	if b.head >= uint64(b.capacity) {
		evicted = b.buf[(b.head-uint64(b.capacity))&b.mask]
		ok = true
	}
	b.buf[b.head&b.mask] = v
	b.head++
	b.evicted, b.hasEvicted = evicted, ok
	return evicted, ok
}

// ReplaceLast overwrites the newest value and returns the previous one.
// Returns ok=false on an empty buffer (nothing is written in that case).
func (b *Buffer) ReplaceLast(v float64) (old float64, ok bool) {
	if b.head == 0 {
		return 0, false
	}
	i := (b.head - 1) & b.mask
	old = b.buf[i]
	b.buf[i] = v
	return old, true
}

// Evicted returns the value dropped by the most recent Push, if any.
// ReplaceLast does not change it.
func (b *Buffer) Evicted() (float64, bool) {
	return b.evicted, b.hasEvicted
}

// Len returns the number of values currently in the window.
func (b *Buffer) Len() int {
	if b.head < uint64(b.capacity) {
		return int(b.head)
	}
	return b.capacity
}

// Cap returns the window capacity.
func (b *Buffer) Cap() int {
	return b.capacity
}

// Full reports whether the window holds Cap() values.
func (b *Buffer) Full() bool {
	return b.head >= uint64(b.capacity)
}

// At returns the i-th value in the window, 0 being the oldest.
// Panics if i is out of range.
func (b *Buffer) At(i int) float64 {
	n := b.Len()
	if i < 0 || i >= n {
		panic("ringbuf: index out of range")
	}
	return b.buf[(b.head-uint64(n)+uint64(i))&b.mask]
}

// Last returns the newest value.
func (b *Buffer) Last() (float64, bool) {
	if b.head == 0 {
		return 0, false
	}
	return b.buf[(b.head-1)&b.mask], true
}

// AppendTo appends the window contents, oldest first, to dst.
func (b *Buffer) AppendTo(dst []float64) []float64 {
	n := b.Len()
	start := b.head - uint64(n)
	for i := uint64(0); i < uint64(n); i++ {
		dst = append(dst, b.buf[(start+i)&b.mask])
	}
	return dst
}

// Reset empties the window.
func (b *Buffer) Reset() {
	b.head = 0
	b.evicted, b.hasEvicted = 0, false
	for i := range b.buf {
		b.buf[i] = 0
	}
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
