// Package skip provides a cursor that can be told to drop future occurrences
// of a value.
package skip

import "errors"

// ErrExhausted is returned by Next when no values remain.
var ErrExhausted = errors.New("skip: cursor exhausted")

// Cursor wraps a Source and suppresses values marked with Skip. It buffers at
// most one value ahead of the caller.
type Cursor[T comparable] struct {
	src     Source[T]
	pending map[T]int
	next    T
	ready   bool
}

// New returns a cursor positioned at the first value of src.
func New[T comparable](src Source[T]) *Cursor[T] {
	c := &Cursor[T]{
		src:     src,
		pending: make(map[T]int),
	}
	c.advance()
	return c
}

// HasNext reports whether Next will return a value.
func (c *Cursor[T]) HasNext() bool {
	return c.ready
}

// Next returns the buffered value and moves to the following one.
func (c *Cursor[T]) Next() (T, error) {
	if !c.ready {
		var zero T
		return zero, ErrExhausted
	}
	v := c.next
	c.advance()
	return v, nil
}

// Skip drops the next occurrence of v that has not been returned yet. If v is
// the buffered value it is dropped right away, otherwise the skip is recorded
// and applied when v is pulled from the source.
func (c *Cursor[T]) Skip(v T) {
	if c.ready && c.next == v {
		c.advance()
		return
	}
	c.pending[v]++
}

// Pending returns the number of recorded skips for v.
func (c *Cursor[T]) Pending(v T) int {
	return c.pending[v]
}

// Drain consumes every remaining value.
func (c *Cursor[T]) Drain() []T {
	var out []T
	for c.ready {
		v, _ := c.Next()
		out = append(out, v)
	}
	return out
}

// advance pulls until it finds a value without pending skips.
func (c *Cursor[T]) advance() {
	for {
		v, ok := c.src.Next()
		if !ok {
			var zero T
			c.next, c.ready = zero, false
			return
		}
		if n := c.pending[v]; n > 0 {
			if n == 1 {
				delete(c.pending, v)
			} else {
				c.pending[v] = n - 1
			}
			continue
		}
		c.next, c.ready = v, true
		return
	}
}
