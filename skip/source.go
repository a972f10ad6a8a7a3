package skip

import "iter"

// Source produces values one at a time. Next reports false once the source is
// exhausted. A Source is never rewound, so single-use streams are fine.
type Source[T any] interface {
	Next() (T, bool)
}

// SourceFunc adapts a function to Source.
type SourceFunc[T any] func() (T, bool)

func (f SourceFunc[T]) Next() (T, bool) { return f() }

type sliceSource[T any] struct {
	values []T
	pos    int
}

func (s *sliceSource[T]) Next() (T, bool) {
	if s.pos >= len(s.values) {
		var zero T
		return zero, false
	}
	v := s.values[s.pos]
	s.pos++
	return v, true
}

// FromSlice yields the elements of values in order.
func FromSlice[T any](values []T) Source[T] {
	return &sliceSource[T]{values: values}
}

// FromChan yields values received from ch until it is closed.
func FromChan[T any](ch <-chan T) Source[T] {
	return SourceFunc[T](func() (T, bool) {
		v, ok := <-ch
		return v, ok
	})
}

// FromSeq pulls from seq. The returned stop function releases the iterator
// and must be called if the source is abandoned before exhaustion.
func FromSeq[T any](seq iter.Seq[T]) (Source[T], func()) {
	next, stop := iter.Pull(seq)
	return SourceFunc[T](next), stop
}
