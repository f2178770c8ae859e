package als

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowAveragesLastN(t *testing.T) {
	w := NewWindow(3)
	for _, v := range []float64{100, 1, 2, 3} {
		w.Push(v)
	}
	avg, ok := w.Average()
	require.True(t, ok)
	assert.InDelta(t, 2.0, avg, 1e-9)
}

func TestWindowReadyOnlyWhenFull(t *testing.T) {
	w := NewWindow(25)
	for i := 0; i < 24; i++ {
		w.Push(float64(i))
	}
	_, ok := w.Average()
	assert.False(t, ok, "24 of 25 samples must not produce an average")
	assert.Equal(t, 24, w.Fill())

	w.Push(24)
	avg, ok := w.Average()
	require.True(t, ok)
	assert.InDelta(t, 12.0, avg, 1e-9)
	assert.Equal(t, 25, w.Fill())
}

func TestWindowUnavailableSampleBlocksUntilEvicted(t *testing.T) {
	w := NewWindow(3)
	w.Push(1)
	w.Push(2)
	w.Push(math.NaN())
	w.Push(4)
	w.Push(5)
	_, ok := w.Average()
	assert.False(t, ok)

	w.Push(6)
	avg, ok := w.Average()
	require.True(t, ok)
	assert.InDelta(t, 5.0, avg, 1e-9)
}

func TestWindowResizeDiscardsHistory(t *testing.T) {
	w := NewWindow(2)
	w.Push(10)
	w.Push(20)
	_, ok := w.Average()
	require.True(t, ok)

	w.Resize(4)
	assert.Equal(t, 4, w.Size())
	assert.Zero(t, w.Fill())
	_, ok = w.Average()
	assert.False(t, ok)

	for _, v := range []float64{1, 1, 1, 5} {
		w.Push(v)
	}
	avg, ok := w.Average()
	require.True(t, ok)
	assert.InDelta(t, 2.0, avg, 1e-9)
}

func TestWindowMinimumSize(t *testing.T) {
	w := NewWindow(0)
	assert.Equal(t, 1, w.Size())
	w.Push(7)
	avg, ok := w.Average()
	require.True(t, ok)
	assert.Equal(t, 7.0, avg)
}
