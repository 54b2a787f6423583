package tracking

import "iter"

// Ring is a fixed-capacity buffer that evicts its oldest element when full.
// Storage is allocated once at construction.
type Ring[T any] struct {
	buf   []T
	start int
	size  int
}

func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, overwriting the oldest element when the ring is full.
func (r *Ring[T]) Push(v T) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// Reset empties the ring, keeping its storage.
func (r *Ring[T]) Reset() {
	r.start, r.size = 0, 0
}

func (r *Ring[T]) Len() int { return r.size }
func (r *Ring[T]) Cap() int { return len(r.buf) }

// At returns the i-th element counting from the oldest.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.size {
		panic("tracking: ring index out of range")
	}
	return r.buf[(r.start+i)%len(r.buf)]
}

// Latest returns the newest element.
func (r *Ring[T]) Latest() (T, bool) {
	if r.size == 0 {
		var zero T
		return zero, false
	}
	return r.At(r.size - 1), true
}

// All iterates oldest to newest.
func (r *Ring[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for i := 0; i < r.size; i++ {
			if !yield(r.At(i)) {
				return
			}
		}
	}
}

// Slice copies the contents oldest to newest.
func (r *Ring[T]) Slice() []T {
	out := make([]T, 0, r.size)
	for v := range r.All() {
		out = append(out, v)
	}
	return out
}
