// Package ringbuf provides a bounded FIFO window backed by a ring buffer.
// Pushing into a full window evicts the oldest element, which gives the
// instrument its "keep the last N bars" history without reallocating.
package ringbuf

import (
	"fmt"

	"chartscan/internal/model"
)

// Window is a fixed-capacity FIFO window. Not goroutine-safe: it is owned
// by a single writer.
type Window[T any] struct {
	buf   []T
	mask  int
	limit int // logical capacity (<= len(buf))
	head  int // index of the oldest element
	size  int

	evicted uint64
}

// New creates a window that holds at most limit elements. The backing
// buffer is rounded up to the next power of two. Minimum limit is 1.
func New[T any](limit int) *Window[T] {
	if limit < 1 {
		limit = 1
	}
	n := nextPow2(limit)
	return &Window[T]{
		buf:   make([]T, n),
		mask:  n - 1,
		limit: limit,
	}
}

// Push appends v. When the window is full the oldest element is removed
// and returned with ok=true.
func (w *Window[T]) Push(v T) (old T, ok bool) {
	if w.size == w.limit {
		var zero T
		old, ok = w.buf[w.head], true
		w.buf[w.head] = zero
		w.head = (w.head + 1) & w.mask
		w.size--
		w.evicted++
	}
	w.buf[(w.head+w.size)&w.mask] = v
	w.size++
	return old, ok
}

// PopFront removes and returns the oldest element.
func (w *Window[T]) PopFront() (T, error) {
	var zero T
	if w.size == 0 {
		return zero, fmt.Errorf("ringbuf pop: %w", model.ErrEmptySeries)
	}
	v := w.buf[w.head]
	w.buf[w.head] = zero
	w.head = (w.head + 1) & w.mask
	w.size--
	w.evicted++
	return v, nil
}

// At returns the i-th element, 0 being the oldest.
func (w *Window[T]) At(i int) (T, error) {
	if i < 0 || i >= w.size {
		var zero T
		return zero, fmt.Errorf("ringbuf at %d (len %d): %w", i, w.size, model.ErrIndexOutOfRange)
	}
	return w.buf[(w.head+i)&w.mask], nil
}

// Last returns the newest element.
func (w *Window[T]) Last() (T, error) {
	if w.size == 0 {
		var zero T
		return zero, fmt.Errorf("ringbuf last: %w", model.ErrEmptySeries)
	}
	return w.buf[(w.head+w.size-1)&w.mask], nil
}

// SetLast overwrites the newest element.
func (w *Window[T]) SetLast(v T) error {
	if w.size == 0 {
		return fmt.Errorf("ringbuf set last: %w", model.ErrEmptySeries)
	}
	w.buf[(w.head+w.size-1)&w.mask] = v
	return nil
}

// Slice copies the window contents, oldest first.
func (w *Window[T]) Slice() []T {
	out := make([]T, w.size)
	for i := range out {
		out[i] = w.buf[(w.head+i)&w.mask]
	}
	return out
}

// Tail copies the last n elements, oldest first.
func (w *Window[T]) Tail(n int) []T {
	if n > w.size {
		n = w.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	start := w.size - n
	for i := range out {
		out[i] = w.buf[(w.head+start+i)&w.mask]
	}
	return out
}

// Reset empties the window.
func (w *Window[T]) Reset() {
	var zero T
	for i := range w.buf {
		w.buf[i] = zero
	}
	w.head, w.size = 0, 0
}

// Len returns the current number of elements.
func (w *Window[T]) Len() int { return w.size }

// Cap returns the logical capacity.
func (w *Window[T]) Cap() int { return w.limit }

// Full reports whether the next Push evicts.
func (w *Window[T]) Full() bool { return w.size == w.limit }

// Evicted returns the total number of elements dropped from the front.
func (w *Window[T]) Evicted() uint64 { return w.evicted }

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
