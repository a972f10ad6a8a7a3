package skip_test

import (
	"errors"
	"slices"
	"testing"

	"chirp/skip"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNext[T comparable](t *testing.T, c *skip.Cursor[T]) T {
	t.Helper()
	require.True(t, c.HasNext())
	v, err := c.Next()
	require.NoError(t, err)
	return v
}

func TestCursorExample(t *testing.T) {
	c := skip.New(skip.FromSlice([]int{2, 3, 5, 6, 5, 7, 5, -1, 5, 10}))

	assert.True(t, c.HasNext())
	assert.Equal(t, 2, mustNext(t, c))
	c.Skip(5)
	assert.Equal(t, 3, mustNext(t, c))
	assert.Equal(t, 6, mustNext(t, c))
	assert.Equal(t, 5, mustNext(t, c))
	c.Skip(5)
	c.Skip(5)
	assert.Equal(t, 7, mustNext(t, c))
	assert.Equal(t, -1, mustNext(t, c))
	assert.Equal(t, 10, mustNext(t, c))
	assert.False(t, c.HasNext())

	// One of the three skips found nothing left to suppress.
	assert.Equal(t, 1, c.Pending(5))
}

func TestSkipBufferedValueAdvancesImmediately(t *testing.T) {
	c := skip.New(skip.FromSlice([]string{"a", "b", "c"}))

	c.Skip("a")
	assert.Equal(t, 0, c.Pending("a"))
	assert.Equal(t, "b", mustNext(t, c))
	assert.Equal(t, "c", mustNext(t, c))
	assert.False(t, c.HasNext())
}

func TestSkipDoesNotAffectReturnedValues(t *testing.T) {
	c := skip.New(skip.FromSlice([]int{1, 2, 1}))

	assert.Equal(t, 1, mustNext(t, c))
	// 2 is buffered, so this skip targets the second 1.
	c.Skip(1)
	assert.Equal(t, []int{2}, c.Drain())
}

func TestSkipEachUnitSuppressesOneOccurrence(t *testing.T) {
	tests := []struct {
		name  string
		input []int
		skips []int
		want  []int
	}{
		{
			name:  "no skips",
			input: []int{1, 2, 3},
			want:  []int{1, 2, 3},
		},
		{
			name:  "skip a later value once",
			input: []int{1, 2, 3, 2},
			skips: []int{2},
			want:  []int{1, 3, 2},
		},
		{
			name:  "skip more times than occurrences",
			input: []int{1, 4, 4},
			skips: []int{4, 4, 4},
			want:  []int{1},
		},
		{
			name:  "skip a value that never appears",
			input: []int{1, 2},
			skips: []int{9},
			want:  []int{1, 2},
		},
		{
			name:  "zero is a regular value",
			input: []int{0, 0, 1},
			skips: []int{0},
			want:  []int{0, 1},
		},
		{
			name:  "everything skipped",
			input: []int{7, 7},
			skips: []int{7, 7},
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := skip.New(skip.FromSlice(tt.input))
			for _, v := range tt.skips {
				c.Skip(v)
			}
			assert.Equal(t, tt.want, c.Drain())
		})
	}
}

func TestNextOnExhaustedCursorAlwaysFails(t *testing.T) {
	c := skip.New(skip.FromSlice([]int{1}))
	assert.Equal(t, 1, mustNext(t, c))

	for i := 0; i < 3; i++ {
		_, err := c.Next()
		assert.True(t, errors.Is(err, skip.ErrExhausted))
	}
	assert.False(t, c.HasNext())
}

func TestEmptySource(t *testing.T) {
	c := skip.New(skip.FromSlice[int](nil))

	assert.False(t, c.HasNext())
	_, err := c.Next()
	assert.ErrorIs(t, err, skip.ErrExhausted)

	c.Skip(1)
	assert.Equal(t, 1, c.Pending(1))
}

// countingSource records how many values have been pulled.
type countingSource struct {
	n      int
	pulled int
}

func (s *countingSource) Next() (int, bool) {
	s.pulled++
	s.n++
	return s.n, true
}

func TestCursorPullsOneAhead(t *testing.T) {
	src := &countingSource{}
	c := skip.New[int](src)
	assert.Equal(t, 1, src.pulled)

	assert.Equal(t, 1, mustNext(t, c))
	assert.Equal(t, 2, src.pulled)

	c.Skip(3)
	assert.Equal(t, 2, src.pulled)
	assert.Equal(t, 2, mustNext(t, c))
	// 3 was skipped, so 4 is buffered.
	assert.Equal(t, 4, src.pulled)
	assert.Equal(t, 4, mustNext(t, c))
}

func TestFromChan(t *testing.T) {
	ch := make(chan string, 4)
	for _, v := range []string{"x", "y", "x", "z"} {
		ch <- v
	}
	close(ch)

	c := skip.New(skip.FromChan(ch))
	c.Skip("y")
	assert.Equal(t, []string{"x", "x", "z"}, c.Drain())
}

func TestFromSeq(t *testing.T) {
	src, stop := skip.FromSeq(slices.Values([]int{5, 6, 5, 7}))
	defer stop()

	c := skip.New(src)
	c.Skip(6)
	c.Skip(7)
	assert.Equal(t, []int{5, 5}, c.Drain())
}

func TestFromSeqInfinite(t *testing.T) {
	naturals := func(yield func(int) bool) {
		for i := 0; ; i++ {
			if !yield(i) {
				return
			}
		}
	}
	src, stop := skip.FromSeq(naturals)
	defer stop()

	c := skip.New(src)
	c.Skip(1)
	c.Skip(3)
	got := make([]int, 0, 4)
	for len(got) < 4 {
		got = append(got, mustNext(t, c))
	}
	assert.Equal(t, []int{0, 2, 4, 5}, got)
}
